package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cyntientops/field-sync/internal/model"
)

// OperationRepository is the durable mutation queue. Rows in
// sync_operations are the single source of truth; drain passes select due
// work directly from the store.
type OperationRepository interface {
	Create(ctx context.Context, op *model.SyncOperation) error
	Get(ctx context.Context, id uuid.UUID) (*model.SyncOperation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OperationStatus, errMsg *string, retryAt *time.Time) error
	IncrementRetry(ctx context.Context, id uuid.UUID, status model.OperationStatus, errMsg *string, retryAt *time.Time) error
	// Requeue returns an operation to pending with a fresh retry budget,
	// replacing its payload when data is non-nil.
	Requeue(ctx context.Context, id uuid.UUID, data []byte) error
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*model.SyncOperation, error)
	ListByStatus(ctx context.Context, status model.OperationStatus, limit int) ([]*model.SyncOperation, error)
	CountPending(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*model.QueueStats, error)
	TrimPending(ctx context.Context, keep int) (int64, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

type ConflictRepository interface {
	Create(ctx context.Context, conflict *model.SyncConflict) error
	Get(ctx context.Context, id uuid.UUID) (*model.SyncConflict, error)
	GetUnresolvedByOperation(ctx context.Context, operationID uuid.UUID) (*model.SyncConflict, error)
	ListUnresolved(ctx context.Context, limit int) ([]*model.SyncConflict, error)
	MarkResolved(ctx context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedData []byte, resolvedBy string, resolvedAt time.Time) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkRead(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error)
	ListUndelivered(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PreferenceRepository interface {
	// Get returns (nil, nil) when no row is stored for the user; callers
	// substitute model.DefaultPreferences.
	Get(ctx context.Context, userID string) (*model.NotificationPreferences, error)
	Upsert(ctx context.Context, prefs *model.NotificationPreferences) error
}
