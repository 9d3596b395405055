package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	mu          sync.RWMutex
	nextItemID  int64
	itemsByID   map[int64]domain.Item
	lineRecords []domain.LineRecord
	auditLogs   []domain.AuditLog
	usersByName map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, domain.RoleManager},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	items := []domain.Item{
		{ID: 1, Name: "Nasi Goreng Spesial", Type: "Food", PriceCents: 22000, Stock: 40},
		{ID: 2, Name: "Mie Ayam Bakso", Type: "Food", PriceCents: 18000, Stock: 35},
		{ID: 3, Name: "Ayam Geprek", Type: "Food", PriceCents: 20000, Stock: 30},
		{ID: 4, Name: "Es Teh Manis", Type: "Beverage", PriceCents: 5000, Stock: 80},
		{ID: 5, Name: "Kopi Susu Gula Aren", Type: "Beverage", PriceCents: 18000, Stock: 50},
		{ID: 6, Name: "Jus Alpukat", Type: "Beverage", PriceCents: 15000, Stock: 25},
		{ID: 7, Name: "Keripik Singkong", Type: "Snack", PriceCents: 12000, Stock: 60},
		{ID: 8, Name: "Pisang Goreng Keju", Type: "Snack", PriceCents: 14000, Stock: 45},
	}

	itemsByID := make(map[int64]domain.Item, len(items))
	var maxID int64
	for _, item := range items {
		itemsByID[item.ID] = item
		if item.ID > maxID {
			maxID = item.ID
		}
	}

	return &Store{
		nextItemID:  maxID + 1,
		itemsByID:   itemsByID,
		lineRecords: make([]domain.LineRecord, 0, 256),
		auditLogs:   make([]domain.AuditLog, 0, 128),
		usersByName: seedUsers(),
	}
}

// NewEmpty returns a store with no seed data. Used by tests that want full
// control over the catalog.
func NewEmpty() *Store {
	return &Store{
		nextItemID:  1,
		itemsByID:   make(map[int64]domain.Item),
		lineRecords: make([]domain.LineRecord, 0, 64),
		auditLogs:   make([]domain.AuditLog, 0, 16),
		usersByName: make(map[string]domain.UserAccount),
	}
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, item := range s.itemsByID {
		items = append(items, item)
	}

	slices.SortFunc(items, func(a, b domain.Item) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	return items, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 1 || item.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	item.ID = s.nextItemID
	s.nextItemID++
	s.itemsByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) GetItemByID(_ context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.itemsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyItem := item
	return &copyItem, nil
}

func (s *Store) GetItemsByIDs(_ context.Context, ids []int64) (map[int64]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Item, len(ids))
	for _, id := range ids {
		if item, exists := s.itemsByID[id]; exists {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 1 || item.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.itemsByID[item.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.itemsByID[item.ID] = item
	updated := item
	return &updated, nil
}

// AdjustStock applies all deltas or none. A negative delta that would push
// stock below zero rejects the whole batch with ErrInsufficientStock.
func (s *Store) AdjustStock(_ context.Context, deltas map[int64]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, delta := range deltas {
		item, exists := s.itemsByID[id]
		if !exists {
			return store.ErrNotFound
		}
		if item.Stock+delta < 0 {
			return store.ErrInsufficientStock
		}
	}
	for id, delta := range deltas {
		item := s.itemsByID[id]
		item.Stock += delta
		s.itemsByID[id] = item
	}
	return nil
}

func (s *Store) InsertLineRecords(_ context.Context, records []domain.LineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lineRecords = append(s.lineRecords, records...)
	return nil
}

func (s *Store) ListLineRecords(_ context.Context, from time.Time, to time.Time) ([]domain.LineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LineRecord, 0, 64)
	for _, record := range s.lineRecords {
		if record.Timestamp.Before(from) || !record.Timestamp.Before(to) {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func (s *Store) ListLineRecordsAt(_ context.Context, at time.Time) ([]domain.LineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := at.UnixMilli()
	result := make([]domain.LineRecord, 0, 8)
	for _, record := range s.lineRecords {
		if record.Timestamp.UnixMilli() == key {
			result = append(result, record)
		}
	}
	return result, nil
}

func (s *Store) ListAllLineRecords(_ context.Context) ([]domain.LineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LineRecord, len(s.lineRecords))
	copy(result, s.lineRecords)
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByName[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByName[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, user := range s.usersByName {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByName[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
