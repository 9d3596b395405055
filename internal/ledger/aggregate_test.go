package ledger

import (
	"testing"
	"time"

	"tokopos/backend/internal/domain"
)

func testCatalog() map[int64]domain.Item {
	return map[int64]domain.Item{
		1: {ID: 1, Name: "Bertrand Onlyfans", Type: "Food", PriceCents: 1000},
		2: {ID: 2, Name: "Pacar Cina", Type: "Beverage", PriceCents: 100},
		3: {ID: 3, Name: "Keripik Singkong", Type: "Snack", PriceCents: 250},
	}
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}

func TestAggregateGroupsByExactTimestamp(t *testing.T) {
	at := mustParse(t, "2024-12-02T13:57:00Z")
	records := []domain.LineRecord{
		{ItemID: 1, Timestamp: at, Quantity: 3, UnitPriceCents: 1000},
		{ItemID: 2, Timestamp: at, Quantity: 3, UnitPriceCents: 100},
	}

	transactions := Aggregate(records, testCatalog())
	if len(transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(transactions))
	}

	tx := transactions[0]
	if tx.TotalCents != 3300 {
		t.Fatalf("expected total 3300, got %d", tx.TotalCents)
	}
	if len(tx.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(tx.LineItems))
	}
	if tx.LineItems[0].Name != "Bertrand Onlyfans" || tx.LineItems[1].Name != "Pacar Cina" {
		t.Fatalf("unexpected resolved names: %+v", tx.LineItems)
	}
	if tx.LineItems[0].AmountCents != 3000 || tx.LineItems[1].AmountCents != 300 {
		t.Fatalf("unexpected extended amounts: %+v", tx.LineItems)
	}
	if tx.IsReturn() {
		t.Fatalf("positive-total transaction classified as return")
	}
}

func TestAggregatePartitionsInputExactly(t *testing.T) {
	first := mustParse(t, "2024-12-02T13:57:00Z")
	second := mustParse(t, "2024-12-02T14:02:11Z")
	records := []domain.LineRecord{
		{ItemID: 1, Timestamp: first, Quantity: 2, UnitPriceCents: 1000},
		{ItemID: 3, Timestamp: second, Quantity: 1, UnitPriceCents: 250},
		{ItemID: 2, Timestamp: first, Quantity: 1, UnitPriceCents: 100},
	}

	transactions := Aggregate(records, testCatalog())
	if len(transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(transactions))
	}

	total := 0
	seen := make(map[int64]bool)
	for _, tx := range transactions {
		if seen[tx.Timestamp.UnixMilli()] {
			t.Fatalf("duplicate timestamp %v across transactions", tx.Timestamp)
		}
		seen[tx.Timestamp.UnixMilli()] = true
		total += len(tx.LineItems)

		sum := int64(0)
		for _, item := range tx.LineItems {
			sum += item.AmountCents
		}
		if sum != tx.TotalCents {
			t.Fatalf("transaction %s total %d != line sum %d", tx.ID, tx.TotalCents, sum)
		}
	}
	if total != len(records) {
		t.Fatalf("expected %d line items across transactions, got %d", len(records), total)
	}
}

func TestAggregateSortsMostRecentFirst(t *testing.T) {
	records := []domain.LineRecord{
		{ItemID: 1, Timestamp: mustParse(t, "2024-12-02T13:25:00Z"), Quantity: 1, UnitPriceCents: 100},
		{ItemID: 2, Timestamp: mustParse(t, "2024-12-02T13:57:00Z"), Quantity: 1, UnitPriceCents: 100},
		{ItemID: 3, Timestamp: mustParse(t, "2024-12-02T13:41:00Z"), Quantity: 1, UnitPriceCents: 100},
	}

	transactions := Aggregate(records, testCatalog())
	for i := 1; i < len(transactions); i++ {
		if transactions[i].Timestamp.After(transactions[i-1].Timestamp) {
			t.Fatalf("transactions not sorted descending: %v before %v",
				transactions[i-1].Timestamp, transactions[i].Timestamp)
		}
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	at := mustParse(t, "2024-12-02T13:57:00Z")
	records := []domain.LineRecord{
		{ItemID: 1, Timestamp: at, Quantity: 3, UnitPriceCents: 1000},
		{ItemID: 2, Timestamp: at.Add(time.Minute), Quantity: 1, UnitPriceCents: 100},
	}

	first := Aggregate(records, testCatalog())
	second := Aggregate(records, testCatalog())
	if len(first) != len(second) {
		t.Fatalf("length mismatch between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("transaction id not stable: %s vs %s", first[i].ID, second[i].ID)
		}
		if first[i].TotalCents != second[i].TotalCents {
			t.Fatalf("total not stable for %s", first[i].ID)
		}
	}
}

func TestAggregateMissingCatalogEntryGetsPlaceholderName(t *testing.T) {
	at := mustParse(t, "2024-12-02T13:57:00Z")
	records := []domain.LineRecord{
		{ItemID: 99, Timestamp: at, Quantity: 2, UnitPriceCents: 450},
	}

	transactions := Aggregate(records, testCatalog())
	if len(transactions) != 1 {
		t.Fatalf("expected unknown item to still aggregate")
	}
	tx := transactions[0]
	if tx.LineItems[0].Name != "Item #99" {
		t.Fatalf("expected placeholder name, got %q", tx.LineItems[0].Name)
	}
	if tx.TotalCents != 900 {
		t.Fatalf("expected unknown item to contribute to total, got %d", tx.TotalCents)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	transactions := Aggregate(nil, testCatalog())
	if len(transactions) != 0 {
		t.Fatalf("expected empty result for empty input, got %d", len(transactions))
	}
}

func TestTransactionIDRoundTrip(t *testing.T) {
	at := mustParse(t, "2024-12-02T13:57:00Z")
	id := TransactionID(at)
	if id == "" || id[0] != '#' {
		t.Fatalf("unexpected id format: %q", id)
	}

	decoded, err := DecodeTransactionID(id)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !decoded.Equal(at) {
		t.Fatalf("decoded %v, want %v", decoded, at)
	}
}

func TestDecodeTransactionIDRejectsGarbage(t *testing.T) {
	if _, err := DecodeTransactionID(""); err == nil {
		t.Fatalf("expected empty id to be rejected")
	}
	if _, err := DecodeTransactionID("#not base36!"); err == nil {
		t.Fatalf("expected malformed id to be rejected")
	}
}

func TestParseLineRowsCoercesMalformedFields(t *testing.T) {
	rows := []domain.RawLineRow{
		{ItemID: 1, Time: "2024-12-02T13:57:00Z", Count: "3", Price: "1000"},
		{ItemID: 2, Time: "2024-12-02 13:57:00", Count: "abc", Price: "12.6"},
		{ItemID: 3, Time: "not a time", Count: "-1", Price: ""},
	}

	records := ParseLineRows(rows)
	if len(records) != 3 {
		t.Fatalf("expected no row to be dropped, got %d", len(records))
	}

	if records[0].Quantity != 3 || records[0].UnitPriceCents != 1000 {
		t.Fatalf("well-formed row mangled: %+v", records[0])
	}
	if records[1].Quantity != 0 {
		t.Fatalf("malformed count should coerce to zero, got %d", records[1].Quantity)
	}
	if records[1].UnitPriceCents != 13 {
		t.Fatalf("fractional price should round, got %d", records[1].UnitPriceCents)
	}
	if records[2].Quantity != -1 || records[2].UnitPriceCents != 0 {
		t.Fatalf("unexpected coercion: %+v", records[2])
	}
	if !records[2].Timestamp.IsZero() {
		t.Fatalf("unparseable time should coerce to zero time, got %v", records[2].Timestamp)
	}
}
