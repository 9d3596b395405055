// Package ledger is the pure computation core of the POS backend: it shapes
// flat sale line records into logical transactions and computes pro-rata
// refunds for partial returns. Nothing here performs I/O or mutates its
// inputs, so every function is safe to call concurrently.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"tokopos/backend/internal/domain"
)

// transactionIDPrefix keeps derived ids visually distinct from item ids and
// matches the receipt style the frontend renders.
const transactionIDPrefix = "#"

// TransactionID derives the display id for the checkout event at ts. The id
// is the upper-cased base-36 encoding of the epoch-millisecond value, so
// re-aggregating identical server data always yields identical ids and the
// timestamp can be recovered with DecodeTransactionID.
func TransactionID(ts time.Time) string {
	return transactionIDPrefix + strings.ToUpper(strconv.FormatInt(ts.UnixMilli(), 36))
}

// DecodeTransactionID recovers the grouping timestamp encoded by
// TransactionID.
func DecodeTransactionID(id string) (time.Time, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(id), transactionIDPrefix)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty transaction id")
	}
	ms, err := strconv.ParseInt(strings.ToLower(raw), 36, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed transaction id %q", id)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Aggregate groups flat line records into logical transactions, one per
// distinct timestamp, and resolves display names against the catalog.
//
// The unit price is taken from the record itself, never re-looked-up, so a
// transaction keeps the price that was charged even after the catalog entry
// changes. A record whose item is missing from the catalog still aggregates,
// under a synthesized "Item #<id>" name. Output is sorted most recent first;
// the presentation layer relies on that ordering.
func Aggregate(records []domain.LineRecord, catalog map[int64]domain.Item) []domain.Transaction {
	if len(records) == 0 {
		return []domain.Transaction{}
	}

	grouped := make(map[int64]*domain.Transaction)
	order := make([]int64, 0, 16)
	for _, record := range records {
		key := record.Timestamp.UnixMilli()
		tx, ok := grouped[key]
		if !ok {
			tx = &domain.Transaction{
				ID:        TransactionID(record.Timestamp),
				Timestamp: record.Timestamp.UTC(),
				LineItems: make([]domain.LineItem, 0, 4),
			}
			grouped[key] = tx
			order = append(order, key)
		}

		name := fmt.Sprintf("Item #%d", record.ItemID)
		if item, exists := catalog[record.ItemID]; exists {
			name = item.Name
		}

		amount := record.AmountCents()
		tx.LineItems = append(tx.LineItems, domain.LineItem{
			ItemID:         record.ItemID,
			Name:           name,
			Quantity:       record.Quantity,
			UnitPriceCents: record.UnitPriceCents,
			AmountCents:    amount,
		})
		tx.TotalCents += amount
	}

	transactions := make([]domain.Transaction, 0, len(order))
	for _, key := range order {
		transactions = append(transactions, *grouped[key])
	}
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].Timestamp.After(transactions[j].Timestamp)
	})
	return transactions
}

// ParseLineRows converts raw feed rows into typed line records. The feed is
// not trusted: a malformed count or price coerces to zero and an unparseable
// time coerces to the zero time, so one bad row degrades to a zero-value
// contribution instead of failing the whole batch.
func ParseLineRows(rows []domain.RawLineRow) []domain.LineRecord {
	records := make([]domain.LineRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.LineRecord{
			ItemID:         row.ItemID,
			Timestamp:      coerceTime(row.Time),
			Quantity:       int(coerceInt(row.Count)),
			UnitPriceCents: coerceInt(row.Price),
		})
	}
	return records
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceTime(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func coerceInt(raw string) int64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	if parsed, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return int64(math.Round(parsed))
	}
	return 0
}
