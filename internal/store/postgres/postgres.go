package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

// Store persists to PostgreSQL through the pgx stdlib driver. The schema
// (items, sale_records, audit_logs, users) is managed externally by
// migrations; the application never creates tables.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, price_cents, stock, COALESCE(image, '')
		FROM items
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Type, &item.PriceCents, &item.Stock, &item.Image); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 1 || item.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO items (name, type, price_cents, stock, image, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING id
	`, item.Name, item.Type, item.PriceCents, item.Stock, item.Image).Scan(&item.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) GetItemByID(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, price_cents, stock, COALESCE(image, '')
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.Type, &item.PriceCents, &item.Stock, &item.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Item, error) {
	result := make(map[int64]domain.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, price_cents, stock, COALESCE(image, '')
		FROM items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Type, &item.PriceCents, &item.Stock, &item.Image); err != nil {
			return nil, err
		}
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 1 || item.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, type = $3, price_cents = $4, stock = $5, image = $6, updated_at = now()
		WHERE id = $1
	`, item.ID, item.Name, item.Type, item.PriceCents, item.Stock, item.Image)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := item
	return &updated, nil
}

// AdjustStock applies every delta in one serializable transaction. Stock is
// checked under lock so concurrent checkouts cannot oversell.
func (s *Store) AdjustStock(ctx context.Context, deltas map[int64]int) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for id, delta := range deltas {
		var stock int
		err := tx.QueryRowContext(ctx, `
			SELECT stock FROM items WHERE id = $1 FOR UPDATE
		`, id).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if stock+delta < 0 {
			return store.ErrInsufficientStock
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE items SET stock = stock + $2, updated_at = now() WHERE id = $1
		`, id, delta); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) InsertLineRecords(ctx context.Context, records []domain.LineRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, record := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_records (item_id, sold_at, quantity, unit_price_cents)
			VALUES ($1,$2,$3,$4)
		`, record.ItemID, record.Timestamp.UTC(), record.Quantity, record.UnitPriceCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListLineRecords(ctx context.Context, from time.Time, to time.Time) ([]domain.LineRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, sold_at, quantity, unit_price_cents
		FROM sale_records
		WHERE sold_at >= $1 AND sold_at < $2
		ORDER BY sold_at, id
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLineRecords(rows)
}

func (s *Store) ListLineRecordsAt(ctx context.Context, at time.Time) ([]domain.LineRecord, error) {
	// Transactions are identified by their millisecond, but stored timestamps
	// keep full precision (imported feeds can carry sub-millisecond digits).
	// Match the whole millisecond, as the aggregator does.
	from := time.UnixMilli(at.UnixMilli()).UTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, sold_at, quantity, unit_price_cents
		FROM sale_records
		WHERE sold_at >= $1 AND sold_at < $2
		ORDER BY id
	`, from, from.Add(time.Millisecond))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLineRecords(rows)
}

func (s *Store) ListAllLineRecords(ctx context.Context) ([]domain.LineRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, sold_at, quantity, unit_price_cents
		FROM sale_records
		ORDER BY sold_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLineRecords(rows)
}

func scanLineRecords(rows *sql.Rows) ([]domain.LineRecord, error) {
	records := make([]domain.LineRecord, 0, 256)
	for rows.Next() {
		var record domain.LineRecord
		if err := rows.Scan(&record.ItemID, &record.Timestamp, &record.Quantity, &record.UnitPriceCents); err != nil {
			return nil, err
		}
		record.Timestamp = record.Timestamp.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
