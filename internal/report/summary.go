// Package report computes the dashboard figures from recorded sale lines.
// Everything here is a pure function over records and the item catalog.
package report

import (
	"sort"
	"time"

	"tokopos/backend/internal/domain"
)

const fallbackCategory = "Others"

// Statistics totals the whole record set. Each distinct checkout timestamp
// counts as one order and one customer.
func Statistics(records []domain.LineRecord) domain.SummaryStatistics {
	var stats domain.SummaryStatistics
	orders := make(map[int64]struct{})
	for _, record := range records {
		stats.TotalRevenueCents += record.AmountCents()
		stats.TotalItemsSold += record.Quantity
		orders[record.Timestamp.UnixMilli()] = struct{}{}
	}
	stats.TotalOrders = len(orders)
	stats.TotalCustomers = len(orders)
	return stats
}

// MonthlySeries buckets revenue and unit sales into twelve calendar months,
// January through December, ignoring the year so the chart always has a
// full axis.
func MonthlySeries(records []domain.LineRecord) []domain.MonthlyPoint {
	points := make([]domain.MonthlyPoint, 12)
	for i := range points {
		points[i].Label = time.Month(i + 1).String()[:3]
	}
	for _, record := range records {
		if record.Timestamp.IsZero() {
			continue
		}
		idx := int(record.Timestamp.Month()) - 1
		points[idx].RevenueCents += record.AmountCents()
		points[idx].Sales += record.Quantity
	}
	return points
}

// CategorySales counts units sold per item type. Records whose item is
// missing from the catalog, or whose item carries no type, land in "Others".
// Sorted by count descending, name ascending on ties.
func CategorySales(records []domain.LineRecord, catalog map[int64]domain.Item) []domain.CategorySales {
	counts := make(map[string]int)
	for _, record := range records {
		category := fallbackCategory
		if item, ok := catalog[record.ItemID]; ok && item.Type != "" {
			category = item.Type
		}
		counts[category] += record.Quantity
	}

	out := make([]domain.CategorySales, 0, len(counts))
	for name, count := range counts {
		out = append(out, domain.CategorySales{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Build assembles the full dashboard payload.
func Build(records []domain.LineRecord, catalog map[int64]domain.Item, now time.Time) domain.SummaryResponse {
	return domain.SummaryResponse{
		Statistics:  Statistics(records),
		Monthly:     MonthlySeries(records),
		BestSelling: CategorySales(records, catalog),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}
