package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/ledger"
	"tokopos/backend/internal/report"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const summaryCacheKey = "summary:v1"

type Service struct {
	repo       store.Repository
	summaries  cache.SummaryCache
	summaryTTL time.Duration

	mu        sync.Mutex
	lastStamp int64
}

func New(repo store.Repository, summaries cache.SummaryCache, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 60 * time.Second
	}

	return &Service{
		repo:       repo,
		summaries:  summaries,
		summaryTTL: summaryTTL,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleManager {
		return domain.Item{}, fmt.Errorf("manager role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.TrimSpace(req.Type)
	if req.Name == "" || req.Type == "" {
		return domain.Item{}, store.ErrInvalidTransaction
	}
	if req.PriceCents < 1 || req.InitialStock < 0 {
		return domain.Item{}, store.ErrInvalidTransaction
	}

	item := domain.Item{
		Name:       req.Name,
		Type:       req.Type,
		PriceCents: req.PriceCents,
		Stock:      req.InitialStock,
		Image:      req.Image,
	}

	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, "item_create", "item", strconv.FormatInt(created.ID, 10), fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, created.Stock))
	s.invalidateSummary(ctx)

	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, id int64, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleManager {
		return domain.Item{}, fmt.Errorf("manager role required")
	}

	existing, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.Type != nil {
		itemType := strings.TrimSpace(*req.Type)
		if itemType == "" {
			return domain.Item{}, store.ErrInvalidTransaction
		}
		updated.Type = itemType
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Item{}, store.ErrInvalidTransaction
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Item{}, store.ErrInvalidTransaction
		}
		updated.Stock = *req.Stock
	}
	if req.Image != nil {
		updated.Image = *req.Image
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, "item_update", "item", strconv.FormatInt(saved.ID, 10), fmt.Sprintf("name=%s,price=%d,stock=%d", saved.Name, saved.PriceCents, saved.Stock))
	s.invalidateSummary(ctx)

	return *saved, nil
}

// Checkout turns a cart into one logical transaction: every line record it
// writes carries the same millisecond-truncated timestamp, which is what the
// history view later groups on.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	quantities, err := parseCart(req.Items)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if len(quantities) == 0 {
		return domain.CheckoutResponse{}, store.ErrInvalidTransaction
	}

	ids := make([]int64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	catalog, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	for _, id := range ids {
		if _, ok := catalog[id]; !ok {
			return domain.CheckoutResponse{}, store.ErrNotFound
		}
	}

	deltas := make(map[int64]int, len(quantities))
	for id, qty := range quantities {
		deltas[id] = -qty
	}
	if err := s.repo.AdjustStock(ctx, deltas); err != nil {
		return domain.CheckoutResponse{}, err
	}

	at := s.nextTimestamp()
	records := make([]domain.LineRecord, 0, len(quantities))
	for _, id := range ids {
		records = append(records, domain.LineRecord{
			ItemID:         id,
			Timestamp:      at,
			Quantity:       quantities[id],
			UnitPriceCents: catalog[id].PriceCents,
		})
	}
	if err := s.repo.InsertLineRecords(ctx, records); err != nil {
		// Stock was already taken; put it back so the failed checkout leaves
		// no trace.
		restock := make(map[int64]int, len(deltas))
		for id, delta := range deltas {
			restock[id] = -delta
		}
		if restockErr := s.repo.AdjustStock(ctx, restock); restockErr != nil {
			log.Printf("[service] WARN: failed to restock after aborted checkout at=%s: %v", at.Format(time.RFC3339), restockErr)
		}
		return domain.CheckoutResponse{}, err
	}

	transactions := ledger.Aggregate(records, catalog)
	tx := transactions[0]

	s.logAudit(ctx, "checkout", "transaction", tx.ID, fmt.Sprintf("items=%d,total=%d", len(tx.LineItems), tx.TotalCents))
	s.invalidateSummary(ctx)

	return domain.CheckoutResponse{
		TransactionID: tx.ID,
		Time:          tx.Timestamp.Format(time.RFC3339),
		TotalCents:    tx.TotalCents,
		LineItems:     tx.LineItems,
	}, nil
}

// History returns the transactions of one calendar day, most recent first.
// query filters by substring over the transaction id, formatted time, and
// total, matching what the history screen's search box does.
func (s *Service) History(ctx context.Context, date string, query string) (domain.HistoryResponse, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	from, err := time.Parse("2006-01-02", date)
	if err != nil {
		return domain.HistoryResponse{}, store.ErrInvalidTransaction
	}
	to := from.Add(24 * time.Hour)

	records, err := s.repo.ListLineRecords(ctx, from, to)
	if err != nil {
		return domain.HistoryResponse{}, err
	}

	catalog, err := s.catalogFor(ctx, records)
	if err != nil {
		return domain.HistoryResponse{}, err
	}

	transactions := ledger.Aggregate(records, catalog)
	if query = strings.TrimSpace(strings.ToLower(query)); query != "" {
		filtered := transactions[:0]
		for _, tx := range transactions {
			haystack := strings.ToLower(fmt.Sprintf("%s %s %d", tx.ID, tx.Timestamp.Format(time.RFC3339), tx.TotalCents))
			if strings.Contains(haystack, query) {
				filtered = append(filtered, tx)
			}
		}
		transactions = filtered
	}

	return domain.HistoryResponse{Date: date, Transactions: transactions}, nil
}

// SubmitReturn refunds part of a past transaction. The transaction id is
// decoded back to its timestamp, the original records are re-fetched and
// re-aggregated, and the refund is written as a new negative-quantity
// transaction while the returned stock goes back on the shelf. The original
// transaction is never modified.
func (s *Service) SubmitReturn(ctx context.Context, req domain.ReturnSubmitRequest) (domain.ReturnSubmitResponse, error) {
	at, err := ledger.DecodeTransactionID(req.TransactionID)
	if err != nil {
		return domain.ReturnSubmitResponse{}, fmt.Errorf("%w: %v", ledger.ErrInvalidArgument, err)
	}

	records, err := s.repo.ListLineRecordsAt(ctx, at)
	if err != nil {
		return domain.ReturnSubmitResponse{}, err
	}
	if len(records) == 0 {
		return domain.ReturnSubmitResponse{}, store.ErrNotFound
	}

	catalog, err := s.catalogFor(ctx, records)
	if err != nil {
		return domain.ReturnSubmitResponse{}, err
	}

	transactions := ledger.Aggregate(records, catalog)
	tx := transactions[0]

	computed, err := ledger.ComputeReturn(tx, req.Quantities)
	if err != nil {
		return domain.ReturnSubmitResponse{}, err
	}

	returnAt := s.nextTimestamp()
	if !returnAt.After(at) {
		returnAt = at.Add(time.Millisecond)
	}
	if err := s.repo.InsertLineRecords(ctx, computed.Records(returnAt)); err != nil {
		return domain.ReturnSubmitResponse{}, err
	}

	if err := s.repo.AdjustStock(ctx, computed.Submission()); err != nil {
		// Items that no longer exist in the catalog cannot be restocked; the
		// refund itself still stands.
		log.Printf("[service] WARN: failed to restock returned items tx=%s: %v", tx.ID, err)
	}

	returnID := ledger.TransactionID(returnAt)
	s.logAudit(ctx, "return_submit", "transaction", tx.ID, fmt.Sprintf("refund=%d,lines=%d", computed.TotalRefundCents, len(computed.Lines)))
	s.invalidateSummary(ctx)

	return domain.ReturnSubmitResponse{
		ReturnTransactionID: returnID,
		ForTransactionID:    tx.ID,
		TotalRefundCents:    computed.TotalRefundCents,
		Lines:               computed.Lines,
	}, nil
}

// ImportRecords ingests raw rows from an external sales feed. Parsing is
// tolerant; whatever the feed sends is coerced and stored.
func (s *Service) ImportRecords(ctx context.Context, req domain.ImportRequest) (domain.ImportResponse, error) {
	if len(req.Rows) == 0 {
		return domain.ImportResponse{}, store.ErrInvalidTransaction
	}

	records := ledger.ParseLineRows(req.Rows)
	if err := s.repo.InsertLineRecords(ctx, records); err != nil {
		return domain.ImportResponse{}, err
	}

	s.logAudit(ctx, "records_import", "line_records", "", fmt.Sprintf("rows=%d", len(records)))
	s.invalidateSummary(ctx)

	return domain.ImportResponse{
		Accepted: len(records),
		At:       time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Summary serves the dashboard, cached for a short TTL because it walks the
// whole record history.
func (s *Service) Summary(ctx context.Context) (domain.SummaryResponse, error) {
	if cached, ok, err := s.summaries.Get(ctx, summaryCacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache read failed: %v", err)
	}

	records, err := s.repo.ListAllLineRecords(ctx)
	if err != nil {
		return domain.SummaryResponse{}, err
	}
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.SummaryResponse{}, err
	}
	catalog := make(map[int64]domain.Item, len(items))
	for _, item := range items {
		catalog[item.ID] = item
	}

	resp := report.Build(records, catalog, time.Now())
	if err := s.summaries.Set(ctx, summaryCacheKey, &resp, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write failed: %v", err)
	}
	return resp, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// catalogFor resolves the distinct item ids referenced by records.
func (s *Service) catalogFor(ctx context.Context, records []domain.LineRecord) (map[int64]domain.Item, error) {
	seen := make(map[int64]struct{}, len(records))
	ids := make([]int64, 0, len(records))
	for _, record := range records {
		if _, ok := seen[record.ItemID]; ok {
			continue
		}
		seen[record.ItemID] = struct{}{}
		ids = append(ids, record.ItemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return s.repo.GetItemsByIDs(ctx, ids)
}

// parseCart converts the submission shape {"<item id>": qty} into typed ids.
func parseCart(items map[string]int) (map[int64]int, error) {
	parsed := make(map[int64]int, len(items))
	for key, qty := range items {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil || id < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		parsed[id] += qty
	}
	return parsed, nil
}

// nextTimestamp hands out strictly increasing millisecond timestamps. The
// timestamp is a transaction's identity, so two checkouts landing in the
// same millisecond must not share one.
func (s *Service) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().UnixMilli()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return time.UnixMilli(now).UTC()
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if err := s.summaries.Invalidate(ctx, summaryCacheKey); err != nil {
		log.Printf("[service] WARN: summary cache invalidate failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
