package store

import (
	"context"
	"errors"
	"time"

	"tokopos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

type Repository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItemByID(ctx context.Context, id int64) (*domain.Item, error)
	GetItemsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	AdjustStock(ctx context.Context, deltas map[int64]int) error
	InsertLineRecords(ctx context.Context, records []domain.LineRecord) error
	ListLineRecords(ctx context.Context, from time.Time, to time.Time) ([]domain.LineRecord, error)
	ListLineRecordsAt(ctx context.Context, at time.Time) ([]domain.LineRecord, error)
	ListAllLineRecords(ctx context.Context) ([]domain.LineRecord, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
