package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/repository"
)

// priorityOrder ranks rows for drain selection: critical first, then by
// enqueue time within equal priority.
const priorityOrder = `
	CASE priority
		WHEN 'critical' THEN 0
		WHEN 'high' THEN 1
		WHEN 'medium' THEN 2
		ELSE 3
	END, timestamp ASC
`

const operationColumns = `
	id, type, entity, entity_id, data, timestamp, user_id, user_role,
	retry_count, max_retries, priority, status, error, retry_at,
	created_at, updated_at
`

type operationRepository struct {
	BaseRepository
}

func NewOperationRepository(base BaseRepository) repository.OperationRepository {
	return &operationRepository{base}
}

func (r *operationRepository) Create(ctx context.Context, op *model.SyncOperation) error {
	if op == nil {
		return fmt.Errorf("operation cannot be nil")
	}
	if len(op.Data) == 0 {
		return fmt.Errorf("operation payload cannot be empty")
	}

	query := `
		INSERT INTO sync_operations (
			id, type, entity, entity_id, data, timestamp, user_id, user_role,
			retry_count, max_retries, priority, status, retry_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`
	_, err := r.db.ExecContext(ctx, query,
		op.ID,
		op.Type,
		op.Entity,
		op.EntityID,
		op.Data,
		op.Timestamp,
		op.UserID,
		op.UserRole,
		op.RetryCount,
		op.MaxRetries,
		op.Priority,
		op.Status,
		op.RetryAt,
		op.CreatedAt,
		op.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync operation: %w", err)
	}
	return nil
}

func (r *operationRepository) Get(ctx context.Context, id uuid.UUID) (*model.SyncOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM sync_operations WHERE id = $1`

	var op model.SyncOperation
	err := r.db.GetContext(ctx, &op, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync operation: %w", err)
	}
	return &op, nil
}

func (r *operationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OperationStatus, errMsg *string, retryAt *time.Time) error {
	query := `
		UPDATE sync_operations
		SET status = $1, error = $2, retry_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, errMsg, retryAt, id)
	if err != nil {
		return fmt.Errorf("failed to update operation status: %w", err)
	}
	return nil
}

func (r *operationRepository) IncrementRetry(ctx context.Context, id uuid.UUID, status model.OperationStatus, errMsg *string, retryAt *time.Time) error {
	query := `
		UPDATE sync_operations
		SET status = $1, error = $2, retry_at = $3,
			retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, errMsg, retryAt, id)
	if err != nil {
		return fmt.Errorf("failed to record retry: %w", err)
	}
	return nil
}

func (r *operationRepository) Requeue(ctx context.Context, id uuid.UUID, data []byte) error {
	query := `
		UPDATE sync_operations
		SET data = COALESCE($1, data), status = $2, error = NULL,
			retry_at = NULL, retry_count = 0, updated_at = NOW()
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, data, model.StatusPending, id)
	if err != nil {
		return fmt.Errorf("failed to requeue operation: %w", err)
	}
	return nil
}

func (r *operationRepository) SelectDue(ctx context.Context, now time.Time, limit int) ([]*model.SyncOperation, error) {
	query := `
		SELECT ` + operationColumns + `
		FROM sync_operations
		WHERE status = $1
		AND (retry_at IS NULL OR retry_at <= $2)
		ORDER BY ` + priorityOrder + `
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`
	var ops []*model.SyncOperation
	err := r.db.SelectContext(ctx, &ops, query, model.StatusPending, now, limit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select due operations: %w", err)
	}
	return ops, nil
}

func (r *operationRepository) ListByStatus(ctx context.Context, status model.OperationStatus, limit int) ([]*model.SyncOperation, error) {
	query := `
		SELECT ` + operationColumns + `
		FROM sync_operations
		WHERE status = $1
		ORDER BY ` + priorityOrder + `
		LIMIT $2
	`
	var ops []*model.SyncOperation
	err := r.db.SelectContext(ctx, &ops, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

func (r *operationRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sync_operations WHERE status = $1`, model.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

func (r *operationRepository) Stats(ctx context.Context) (*model.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'syncing') AS syncing,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE status = 'conflict') AS conflict
		FROM sync_operations
	`
	var stats model.QueueStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}
	return &stats, nil
}

// TrimPending drops pending rows beyond the queue cap, shedding the lowest
// priority and newest rows first.
func (r *operationRepository) TrimPending(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM sync_operations
		WHERE status = 'pending'
		AND id NOT IN (
			SELECT id FROM sync_operations
			WHERE status = 'pending'
			ORDER BY ` + priorityOrder + `
			LIMIT $1
		)
	`
	result, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim pending operations: %w", err)
	}
	return result.RowsAffected()
}

func (r *operationRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM sync_operations
		WHERE status = 'completed'
		AND updated_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed operations: %w", err)
	}
	return result.RowsAffected()
}
