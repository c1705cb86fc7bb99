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

const conflictColumns = `
	id, operation_id, server_data, client_data, conflict_type,
	resolution, strategy, resolved_data, resolved_by, resolved_at, created_at
`

type conflictRepository struct {
	BaseRepository
}

func NewConflictRepository(base BaseRepository) repository.ConflictRepository {
	return &conflictRepository{base}
}

func (r *conflictRepository) Create(ctx context.Context, conflict *model.SyncConflict) error {
	if conflict == nil {
		return fmt.Errorf("conflict cannot be nil")
	}

	query := `
		INSERT INTO sync_conflicts (
			id, operation_id, server_data, client_data, conflict_type,
			resolution, strategy, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.OperationID,
		conflict.ServerData,
		conflict.ClientData,
		conflict.ConflictType,
		conflict.Resolution,
		conflict.Strategy,
		conflict.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

func (r *conflictRepository) Get(ctx context.Context, id uuid.UUID) (*model.SyncConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts WHERE id = $1`

	var conflict model.SyncConflict
	err := r.db.GetContext(ctx, &conflict, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return &conflict, nil
}

func (r *conflictRepository) GetUnresolvedByOperation(ctx context.Context, operationID uuid.UUID) (*model.SyncConflict, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM sync_conflicts
		WHERE operation_id = $1 AND resolution = $2
	`
	var conflict model.SyncConflict
	err := r.db.GetContext(ctx, &conflict, query, operationID, model.ResolutionPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict for operation: %w", err)
	}
	return &conflict, nil
}

func (r *conflictRepository) ListUnresolved(ctx context.Context, limit int) ([]*model.SyncConflict, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM sync_conflicts
		WHERE resolution = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	var conflicts []*model.SyncConflict
	err := r.db.SelectContext(ctx, &conflicts, query, model.ResolutionPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved conflicts: %w", err)
	}
	return conflicts, nil
}

func (r *conflictRepository) MarkResolved(ctx context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedData []byte, resolvedBy string, resolvedAt time.Time) error {
	query := `
		UPDATE sync_conflicts
		SET resolution = $1, strategy = $2, resolved_data = $3,
			resolved_by = $4, resolved_at = $5
		WHERE id = $6 AND resolution = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		model.ResolutionResolved, strategy, resolvedData, resolvedBy, resolvedAt,
		id, model.ResolutionPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark conflict resolved: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("conflict %s not found or already resolved", id)
	}
	return nil
}
