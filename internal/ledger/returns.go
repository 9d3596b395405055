package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
)

// ReturnComputation is the result of pricing a partial return: one negative
// line per item actually returned, plus the aggregate refund. It is transient
// output for the submission service; the original transaction is never
// touched.
type ReturnComputation struct {
	ForTransactionID string
	Lines            []domain.ReturnLine
	TotalRefundCents int64
}

// Submission renders the computation as the stock adjustment to apply once
// the refund is accepted: item id to the quantity going back on the shelf.
// Line quantities are stored negated, so the deltas here are positive.
func (c ReturnComputation) Submission() map[int64]int {
	out := make(map[int64]int, len(c.Lines))
	for _, line := range c.Lines {
		out[line.ItemID] -= line.Quantity
	}
	return out
}

// ComputeReturn prices a partial return against tx. The requested map is
// keyed by line-item display name, the identity the operator works with.
//
// The per-unit price is recovered by dividing the stored extended amount by
// the original signed quantity, then each line's refund is rounded
// half-away-from-zero once on its extended amount. The total is the sum of
// the rounded line refunds, not the rounded sum, so the per-item and total
// figures on screen stay mutually consistent.
//
// Returned errors: ErrInvalidOperation when tx is not a sale transaction,
// ErrInvalidArgument for unknown names or out-of-range quantities,
// ErrDataIntegrity for a zero-quantity line, and ErrNothingToReturn when no
// line ends up with a positive return quantity.
func ComputeReturn(tx domain.Transaction, requested map[string]int) (ReturnComputation, error) {
	if tx.TotalCents <= 0 {
		return ReturnComputation{}, fmt.Errorf("%w: transaction %s has total %d", ErrInvalidOperation, tx.ID, tx.TotalCents)
	}

	// A transaction can carry several lines for the same display name (the
	// aggregator keeps duplicate feed rows as separate lines). Merge them so
	// the bound check and the per-unit price cover the whole transaction.
	byName := make(map[string]domain.LineItem, len(tx.LineItems))
	for _, item := range tx.LineItems {
		merged, seen := byName[item.Name]
		if !seen {
			byName[item.Name] = item
			continue
		}
		merged.Quantity += item.Quantity
		merged.AmountCents += item.AmountCents
		byName[item.Name] = merged
	}

	// Deterministic processing order regardless of map iteration.
	names := make([]string, 0, len(requested))
	for name := range requested {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]domain.ReturnLine, 0, len(names))
	totalRefund := int64(0)
	for _, name := range names {
		qty := requested[name]
		item, ok := byName[name]
		if !ok {
			return ReturnComputation{}, fmt.Errorf("%w: %q is not part of transaction %s", ErrInvalidArgument, name, tx.ID)
		}
		if item.Quantity == 0 {
			return ReturnComputation{}, fmt.Errorf("%w: %q in transaction %s", ErrDataIntegrity, name, tx.ID)
		}
		if qty < 0 || qty > item.Quantity {
			return ReturnComputation{}, fmt.Errorf("%w: %q allows 0..%d, got %d", ErrInvalidArgument, name, item.Quantity, qty)
		}
		if qty == 0 {
			continue
		}

		refund := unitPrice(item).Mul(decimal.NewFromInt(int64(qty))).Round(0).IntPart()
		lines = append(lines, domain.ReturnLine{
			ItemID:      item.ItemID,
			Name:        item.Name,
			Quantity:    -qty,
			RefundCents: refund,
		})
		totalRefund += refund
	}

	if len(lines) == 0 {
		return ReturnComputation{}, fmt.Errorf("%w: transaction %s", ErrNothingToReturn, tx.ID)
	}

	return ReturnComputation{
		ForTransactionID: tx.ID,
		Lines:            lines,
		TotalRefundCents: totalRefund,
	}, nil
}

// unitPrice recovers the per-unit price from the extended amount using the
// original signed quantity. Callers must reject zero quantities first.
func unitPrice(item domain.LineItem) decimal.Decimal {
	return decimal.NewFromInt(item.AmountCents).Div(decimal.NewFromInt(int64(item.Quantity)))
}

// Records renders the computation as the negative line records to persist at
// the given return timestamp. A line whose refund does not divide evenly by
// its quantity is split into two records one cent apart, so re-aggregating
// the stored records reproduces TotalRefundCents exactly.
func (c ReturnComputation) Records(at time.Time) []domain.LineRecord {
	records := make([]domain.LineRecord, 0, len(c.Lines))
	for _, line := range c.Lines {
		qty := int64(-line.Quantity)
		if qty <= 0 {
			continue
		}
		base := line.RefundCents / qty
		rem := line.RefundCents - base*qty
		if qty > rem {
			records = append(records, domain.LineRecord{
				ItemID:         line.ItemID,
				Timestamp:      at,
				Quantity:       -int(qty - rem),
				UnitPriceCents: base,
			})
		}
		if rem > 0 {
			records = append(records, domain.LineRecord{
				ItemID:         line.ItemID,
				Timestamp:      at,
				Quantity:       -int(rem),
				UnitPriceCents: base + 1,
			})
		}
	}
	return records
}
