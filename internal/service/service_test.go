package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/ledger"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopSummaryCache{}, 5*time.Second)
	return svc, repo
}

func managerContext() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "manager",
		Role:     domain.RoleManager,
	})
}

func cashierContext() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "cashier",
		Role:     domain.RoleCashier,
	})
}

func TestCheckoutWritesOneTransaction(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierContext()

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		Items: map[string]int{"1": 2, "4": 3},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if resp.TransactionID == "" || resp.TransactionID[0] != '#' {
		t.Fatalf("unexpected transaction id %q", resp.TransactionID)
	}
	if resp.TotalCents != 2*22000+3*5000 {
		t.Fatalf("unexpected total %d", resp.TotalCents)
	}
	if len(resp.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(resp.LineItems))
	}

	// All records of one checkout share a timestamp.
	at, err := ledger.DecodeTransactionID(resp.TransactionID)
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	records, err := repo.ListLineRecordsAt(ctx, at)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records at checkout timestamp, got %d", len(records))
	}

	item, err := repo.GetItemByID(ctx, 1)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Stock != 38 {
		t.Fatalf("expected stock 38 after selling 2 of 40, got %d", item.Stock)
	}
}

func TestCheckoutRejectsUnknownItem(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(cashierContext(), domain.CheckoutRequest{
		Items: map[string]int{"999": 1},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckoutRejectsBadCart(t *testing.T) {
	svc, _ := newTestService()

	cases := []map[string]int{
		{},
		{"abc": 1},
		{"1": 0},
		{"1": -2},
	}
	for i, items := range cases {
		_, err := svc.Checkout(cashierContext(), domain.CheckoutRequest{Items: items})
		if !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("case %d: expected ErrInvalidTransaction, got %v", i, err)
		}
	}
}

func TestCheckoutRejectsOversell(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(cashierContext(), domain.CheckoutRequest{
		Items: map[string]int{"6": 9999},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestHistoryReturnsTodaysTransactions(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{Items: map[string]int{"1": 1}}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{Items: map[string]int{"4": 2}}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	history, err := svc.History(ctx, today, "")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(history.Transactions))
	}
	if history.Transactions[0].Timestamp.Before(history.Transactions[1].Timestamp) {
		t.Fatalf("transactions not sorted most recent first")
	}
}

func TestHistoryFiltersByQuery(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{Items: map[string]int{"1": 1}})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	history, err := svc.History(ctx, today, resp.TransactionID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history.Transactions) != 1 || history.Transactions[0].ID != resp.TransactionID {
		t.Fatalf("query by id should match exactly one transaction, got %+v", history.Transactions)
	}

	history, err = svc.History(ctx, today, "no-such-needle")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history.Transactions) != 0 {
		t.Fatalf("expected no match, got %d", len(history.Transactions))
	}
}

func TestHistoryRejectsBadDate(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.History(cashierContext(), "02-12-2024", "")
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestSubmitReturnRefundsAndRestocks(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierContext()

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{Items: map[string]int{"1": 3}})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	result, err := svc.SubmitReturn(ctx, domain.ReturnSubmitRequest{
		TransactionID: resp.TransactionID,
		Quantities:    map[string]int{"Nasi Goreng Spesial": 1},
	})
	if err != nil {
		t.Fatalf("submit return failed: %v", err)
	}
	if result.ForTransactionID != resp.TransactionID {
		t.Fatalf("return not linked to original transaction: %+v", result)
	}
	if result.TotalRefundCents != 22000 {
		t.Fatalf("expected refund 22000, got %d", result.TotalRefundCents)
	}
	if result.ReturnTransactionID == resp.TransactionID {
		t.Fatalf("return must be a new transaction")
	}

	item, err := repo.GetItemByID(ctx, 1)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Stock != 38 {
		t.Fatalf("expected stock back to 38 after returning 1 of 3, got %d", item.Stock)
	}

	// The original stays, the return shows up as its own negative transaction.
	today := time.Now().UTC().Format("2006-01-02")
	history, err := svc.History(ctx, today, "")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history.Transactions) != 2 {
		t.Fatalf("expected original plus return, got %d transactions", len(history.Transactions))
	}
	returnTx := history.Transactions[0]
	if !returnTx.IsReturn() || returnTx.TotalCents != -22000 {
		t.Fatalf("unexpected return transaction: %+v", returnTx)
	}
}

func TestSubmitReturnRejectsReturningAReturn(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{Items: map[string]int{"1": 2}})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	result, err := svc.SubmitReturn(ctx, domain.ReturnSubmitRequest{
		TransactionID: resp.TransactionID,
		Quantities:    map[string]int{"Nasi Goreng Spesial": 2},
	})
	if err != nil {
		t.Fatalf("submit return failed: %v", err)
	}

	_, err = svc.SubmitReturn(ctx, domain.ReturnSubmitRequest{
		TransactionID: result.ReturnTransactionID,
		Quantities:    map[string]int{"Nasi Goreng Spesial": 1},
	})
	if !errors.Is(err, ledger.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestSubmitReturnUnknownTransaction(t *testing.T) {
	svc, _ := newTestService()

	unknown := ledger.TransactionID(time.Now().UTC().Add(-time.Hour))
	_, err := svc.SubmitReturn(cashierContext(), domain.ReturnSubmitRequest{
		TransactionID: unknown,
		Quantities:    map[string]int{"Nasi Goreng Spesial": 1},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = svc.SubmitReturn(cashierContext(), domain.ReturnSubmitRequest{
		TransactionID: "garbage",
		Quantities:    map[string]int{"x": 1},
	})
	if !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for malformed id, got %v", err)
	}
}

func TestImportRecordsTolerantParsing(t *testing.T) {
	svc, repo := newTestService()
	ctx := managerContext()

	resp, err := svc.ImportRecords(ctx, domain.ImportRequest{
		Rows: []domain.RawLineRow{
			{ItemID: 1, Time: "2024-12-02T13:57:00Z", Count: "3", Price: "22000"},
			{ItemID: 2, Time: "not a time", Count: "oops", Price: "1.5"},
		},
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if resp.Accepted != 2 {
		t.Fatalf("expected 2 accepted rows, got %d", resp.Accepted)
	}

	records, err := repo.ListAllLineRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 stored records, got %d", len(records))
	}
}

func TestSubmitReturnFindsImportedSubMillisecondRecords(t *testing.T) {
	svc, repo := newTestService()
	ctx := managerContext()

	// The feed keeps sub-millisecond digits; both rows belong to the same
	// millisecond and therefore to the same transaction.
	_, err := svc.ImportRecords(ctx, domain.ImportRequest{
		Rows: []domain.RawLineRow{
			{ItemID: 1, Time: "2024-12-02T13:57:00.000Z", Count: "2", Price: "22000"},
			{ItemID: 4, Time: "2024-12-02T13:57:00.0005Z", Count: "1", Price: "5000"},
		},
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	at, err := time.Parse(time.RFC3339, "2024-12-02T13:57:00Z")
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	txID := ledger.TransactionID(at)

	resp, err := svc.SubmitReturn(ctx, domain.ReturnSubmitRequest{
		TransactionID: txID,
		Quantities: map[string]int{
			"Nasi Goreng Spesial": 1,
			"Es Teh Manis":        1,
		},
	})
	if err != nil {
		t.Fatalf("return against imported transaction failed: %v", err)
	}
	if resp.TotalRefundCents != 22000+5000 {
		t.Fatalf("expected refund 27000, got %d", resp.TotalRefundCents)
	}

	item, err := repo.GetItemByID(ctx, 4)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Stock != 81 {
		t.Fatalf("expected stock 81 after restocking the returned unit, got %d", item.Stock)
	}
}

func TestImportRecordsRejectsEmpty(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ImportRecords(managerContext(), domain.ImportRequest{})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestCreateItemRequiresManager(t *testing.T) {
	svc, _ := newTestService()

	req := domain.ItemCreateRequest{Name: "Roti Bakar", Type: "Food", PriceCents: 10000, InitialStock: 10}

	if _, err := svc.CreateItem(cashierContext(), req); err == nil {
		t.Fatalf("expected cashier create to be rejected")
	}
	if _, err := svc.CreateItem(context.Background(), req); err == nil {
		t.Fatalf("expected anonymous create to be rejected")
	}

	created, err := svc.CreateItem(managerContext(), req)
	if err != nil {
		t.Fatalf("manager create failed: %v", err)
	}
	if created.ID == 0 || created.Stock != 10 {
		t.Fatalf("unexpected created item: %+v", created)
	}
}

func TestUpdateItemPartialFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := managerContext()

	newPrice := int64(25000)
	updated, err := svc.UpdateItem(ctx, 1, domain.ItemUpdateRequest{PriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.PriceCents != 25000 {
		t.Fatalf("price not updated: %+v", updated)
	}
	if updated.Name != "Nasi Goreng Spesial" {
		t.Fatalf("untouched fields must survive, got %+v", updated)
	}

	empty := ""
	if _, err := svc.UpdateItem(ctx, 1, domain.ItemUpdateRequest{Name: &empty}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for empty name, got %v", err)
	}
	if _, err := svc.UpdateItem(ctx, 999, domain.ItemUpdateRequest{PriceCents: &newPrice}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSummaryReflectsSales(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{Items: map[string]int{"1": 2, "4": 1}}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	summary, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Statistics.TotalRevenueCents != 2*22000+5000 {
		t.Fatalf("unexpected revenue %d", summary.Statistics.TotalRevenueCents)
	}
	if summary.Statistics.TotalOrders != 1 || summary.Statistics.TotalItemsSold != 3 {
		t.Fatalf("unexpected stats %+v", summary.Statistics)
	}
	if len(summary.Monthly) != 12 {
		t.Fatalf("expected 12 monthly points, got %d", len(summary.Monthly))
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Checkout(cashierContext(), domain.CheckoutRequest{Items: map[string]int{"1": 1}}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(managerContext(), "", 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected checkout to leave an audit entry")
	}
	if logs[0].Action != "checkout" || logs[0].ActorUsername != "cashier" {
		t.Fatalf("unexpected audit entry: %+v", logs[0])
	}
	if !strings.HasPrefix(logs[0].Detail, "items=") {
		t.Fatalf("unexpected audit detail %q", logs[0].Detail)
	}
}
