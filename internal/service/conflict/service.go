package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/repository"
	apperrors "github.com/cyntientops/field-sync/pkg/errors"
	"github.com/cyntientops/field-sync/pkg/logger"
)

// DrainTrigger lets a resolution kick the sync engine without the conflict
// service depending on it directly.
type DrainTrigger interface {
	TriggerDrain()
}

// Service is the conflict ledger: it records divergence between a queued
// mutation and observed server state, and mediates the only path that
// returns a conflicted operation to pending.
type Service struct {
	conflicts  repository.ConflictRepository
	operations repository.OperationRepository
	logger     *logger.Logger

	// strategy drives automatic resolution at record time; manual means
	// every conflict waits for an explicit Resolve call.
	strategy model.ResolutionStrategy
	drain    DrainTrigger
	nowFn    func() time.Time
}

func NewService(
	conflicts repository.ConflictRepository,
	operations repository.OperationRepository,
	strategy model.ResolutionStrategy,
	log *logger.Logger,
) *Service {
	if !model.ValidStrategy(strategy) {
		strategy = model.StrategyManual
	}
	return &Service{
		conflicts:  conflicts,
		operations: operations,
		strategy:   strategy,
		logger:     log,
		nowFn:      time.Now,
	}
}

// SetDrainTrigger wires the sync engine in; optional, resolution still
// works without it (the next periodic drain picks the operation up).
func (s *Service) SetDrainTrigger(t DrainTrigger) {
	s.drain = t
}

// Record classifies and persists a conflict and parks the owning operation.
// With a non-manual strategy configured, the conflict is resolved
// immediately under that policy.
func (s *Service) Record(ctx context.Context, op *model.SyncOperation, serverData json.RawMessage) error {
	conflictType := classify(op, serverData)

	conflict := &model.SyncConflict{
		ID:           uuid.New(),
		OperationID:  op.ID,
		ServerData:   serverData,
		ClientData:   op.Data,
		ConflictType: conflictType,
		Resolution:   model.ResolutionPending,
		Strategy:     model.StrategyManual,
		CreatedAt:    s.nowFn(),
	}
	if err := s.conflicts.Create(ctx, conflict); err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	if err := s.operations.UpdateStatus(ctx, op.ID, model.StatusConflict, nil, nil); err != nil {
		return fmt.Errorf("failed to park conflicted operation: %w", err)
	}

	s.logger.Warn("conflict recorded",
		"conflict_id", conflict.ID.String(),
		"operation_id", op.ID.String(),
		"conflict_type", string(conflictType))

	if s.strategy == model.StrategyManual {
		return nil
	}
	return s.resolve(ctx, conflict, s.strategy, nil, "policy:"+string(s.strategy))
}

// classify applies the divergence rule set: a client-side deletion the
// server does not know about is a deletion conflict; a client edit newer
// than the server's copy is a concurrent edit; anything else is a plain
// data mismatch.
func classify(op *model.SyncOperation, serverData json.RawMessage) model.ConflictType {
	clientMeta := model.ExtractMeta(op.Data)
	serverMeta := model.ExtractMeta(serverData)

	clientDeletes := op.Type == model.OperationDelete || clientMeta.Deleted
	if clientDeletes && !serverMeta.Deleted {
		return model.ConflictDeletion
	}

	if !clientMeta.UpdatedAt.IsZero() && !serverMeta.UpdatedAt.IsZero() &&
		clientMeta.UpdatedAt.After(serverMeta.UpdatedAt) {
		return model.ConflictConcurrentEdit
	}

	return model.ConflictDataMismatch
}

// Resolve settles a conflict and requeues its operation. resolvedData, when
// supplied, replaces the operation payload; otherwise the strategy picks
// between the recorded server and client copies.
func (s *Service) Resolve(ctx context.Context, conflictID uuid.UUID, strategy model.ResolutionStrategy, resolvedData json.RawMessage, resolvedBy string) error {
	if !model.ValidStrategy(strategy) {
		return apperrors.BadRequest(fmt.Sprintf("invalid resolution strategy %q", strategy), nil)
	}

	conflict, err := s.conflicts.Get(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict == nil {
		return apperrors.NotFound("conflict", nil)
	}
	if conflict.Resolution == model.ResolutionResolved {
		return apperrors.Conflict("conflict already resolved", nil)
	}

	return s.resolve(ctx, conflict, strategy, resolvedData, resolvedBy)
}

func (s *Service) resolve(ctx context.Context, conflict *model.SyncConflict, strategy model.ResolutionStrategy, resolvedData json.RawMessage, resolvedBy string) error {
	data := resolvedData
	if data == nil {
		switch strategy {
		case model.StrategyServerWins:
			data = conflict.ServerData
		case model.StrategyClientWins:
			data = conflict.ClientData
		case model.StrategyMerge:
			return apperrors.BadRequest("merge resolution requires resolved data", nil)
		default:
			// Manual resolution without data keeps the client payload.
			data = conflict.ClientData
		}
	}

	now := s.nowFn()
	if err := s.conflicts.MarkResolved(ctx, conflict.ID, strategy, data, resolvedBy, now); err != nil {
		return err
	}
	if err := s.operations.Requeue(ctx, conflict.OperationID, data); err != nil {
		return fmt.Errorf("failed to requeue resolved operation: %w", err)
	}

	s.logger.Info("conflict resolved",
		"conflict_id", conflict.ID.String(),
		"operation_id", conflict.OperationID.String(),
		"strategy", string(strategy),
		"resolved_by", resolvedBy)

	if s.drain != nil {
		s.drain.TriggerDrain()
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.SyncConflict, error) {
	return s.conflicts.Get(ctx, id)
}

func (s *Service) ListUnresolved(ctx context.Context, limit int) ([]*model.SyncConflict, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.conflicts.ListUnresolved(ctx, limit)
}
