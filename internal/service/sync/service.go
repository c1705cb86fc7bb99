package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cyntientops/field-sync/internal/apply"
	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/netstatus"
	"github.com/cyntientops/field-sync/internal/repository"
	apperrors "github.com/cyntientops/field-sync/pkg/errors"
	"github.com/cyntientops/field-sync/pkg/logger"
	"github.com/cyntientops/field-sync/pkg/messaging"
	"github.com/cyntientops/field-sync/pkg/metrics"
)

// DrainEvent is broadcast after every drain pass so dashboards and connected
// clients can refresh without polling.
type DrainEvent struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pending    int       `json:"pending"`
}

const drainEventsTopic = "sync:drained"

// ConflictRecorder turns a divergence reported by an applier into a
// conflict record and parks the owning operation. Implemented by the
// conflict service; injected after construction to break the cycle between
// the two services.
type ConflictRecorder interface {
	Record(ctx context.Context, op *model.SyncOperation, serverData json.RawMessage) error
}

type Config struct {
	BatchSize          int
	MaxRetries         int
	QueueCap           int
	ApplyTimeout       time.Duration
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	CompletedRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.QueueCap <= 0 {
		c.QueueCap = 10000
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 30 * time.Second
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 24 * time.Hour
	}
	return c
}

// EnqueueRequest is a producer's mutation intent.
type EnqueueRequest struct {
	Type       model.OperationType
	Entity     model.EntityType
	EntityID   string
	Data       json.RawMessage
	UserID     string
	UserRole   string
	Priority   model.Priority
	MaxRetries int
}

// Service is the mutation queue and sync engine. The sync_operations table
// is the only queue state; a drain pass selects due rows in priority order
// and applies them with per-item isolation.
type Service struct {
	repo      repository.OperationRepository
	appliers  *apply.Registry
	network   netstatus.Monitor
	conflicts ConflictRecorder
	events    messaging.Publisher
	logger    *logger.Logger
	metrics   *metrics.Metrics
	cfg       Config

	draining atomic.Bool
	nowFn    func() time.Time
}

func NewService(
	repo repository.OperationRepository,
	appliers *apply.Registry,
	network netstatus.Monitor,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:     repo,
		appliers: appliers,
		network:  network,
		cfg:      cfg.withDefaults(),
		logger:   log,
		metrics:  m,
		nowFn:    time.Now,
	}
}

// SetConflictRecorder wires the conflict ledger in; must be called before
// the first drain.
func (s *Service) SetConflictRecorder(r ConflictRecorder) {
	s.conflicts = r
}

// SetEventPublisher wires the broker for drain-completion broadcasts;
// optional.
func (s *Service) SetEventPublisher(p messaging.Publisher) {
	s.events = p
}

// Enqueue persists a mutation and, when online, kicks an asynchronous
// drain. The call fails only on validation or persistence errors; apply
// failures surface later on the operation record.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*model.SyncOperation, error) {
	if !model.ValidOperationType(req.Type) {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid operation type %q", req.Type), nil)
	}
	if !model.ValidEntity(req.Entity) {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid entity %q", req.Entity), nil)
	}
	if req.EntityID == "" {
		return nil, apperrors.BadRequest("entity_id is required", nil)
	}
	if !req.Priority.Valid() {
		req.Priority = model.PriorityMedium
	}
	if _, err := model.DecodePayload(req.Entity, req.Data); err != nil {
		return nil, apperrors.BadRequest("invalid payload", err)
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	now := s.nowFn()
	op := &model.SyncOperation{
		ID:         uuid.New(),
		Type:       req.Type,
		Entity:     req.Entity,
		EntityID:   req.EntityID,
		Data:       req.Data,
		Timestamp:  now,
		UserID:     req.UserID,
		UserRole:   req.UserRole,
		RetryCount: 0,
		MaxRetries: maxRetries,
		Priority:   req.Priority,
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to enqueue operation: %w", err)
	}
	s.metrics.OperationsQueued.WithLabelValues(string(op.Entity), string(op.Priority)).Inc()

	// Bound the queue: shed lowest-priority newest rows beyond the cap.
	if dropped, err := s.repo.TrimPending(ctx, s.cfg.QueueCap); err != nil {
		s.logger.Error(err, "failed to trim pending queue")
	} else if dropped > 0 {
		s.logger.Warn("queue cap reached, dropped pending operations", "dropped", dropped)
	}

	if s.network.Online() {
		s.TriggerDrain()
	}
	return op, nil
}

// TriggerDrain starts a drain in the background unless one is in flight.
func (s *Service) TriggerDrain() {
	go func() {
		if err := s.Drain(context.Background()); err != nil {
			s.logger.Error(err, "drain failed")
		}
	}()
}

// Drain runs one full pass over the due pending operations. At most one
// drain runs per process; concurrent calls return immediately.
func (s *Service) Drain(ctx context.Context) error {
	if !s.network.Online() {
		return nil
	}
	if !s.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer s.draining.Store(false)

	start := s.nowFn()
	defer func() {
		s.metrics.DrainLatency.Observe(s.nowFn().Sub(start).Seconds())
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.repo.SelectDue(ctx, s.nowFn(), s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to select due operations: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		s.processBatch(ctx, batch)
	}

	if _, err := s.repo.DeleteCompletedBefore(ctx, s.nowFn().Add(-s.cfg.CompletedRetention)); err != nil {
		s.logger.Error(err, "failed to purge completed operations")
	}

	pending, err := s.repo.CountPending(ctx)
	if err == nil {
		s.metrics.QueueDepth.Set(float64(pending))
	}

	if s.events != nil {
		event := DrainEvent{StartedAt: start, FinishedAt: s.nowFn(), Pending: pending}
		if err := s.events.Publish(ctx, drainEventsTopic, event); err != nil {
			s.logger.Error(err, "failed to publish drain event")
		}
	}
	return nil
}

// processBatch fans the batch out and waits for every item to settle. Each
// item captures its own outcome; one item's failure never aborts siblings.
func (s *Service) processBatch(ctx context.Context, batch []*model.SyncOperation) {
	var wg stdsync.WaitGroup
	for _, op := range batch {
		wg.Add(1)
		go func(op *model.SyncOperation) {
			defer wg.Done()
			s.processOperation(ctx, op)
		}(op)
	}
	wg.Wait()
}

func (s *Service) processOperation(ctx context.Context, op *model.SyncOperation) {
	if err := s.repo.UpdateStatus(ctx, op.ID, model.StatusSyncing, nil, nil); err != nil {
		s.logger.Error(err, "failed to mark operation syncing", "operation_id", op.ID.String())
		return
	}

	err := s.applyWithTimeout(ctx, op)

	var divergence *apply.DivergenceError
	switch {
	case err == nil:
		if uerr := s.repo.UpdateStatus(ctx, op.ID, model.StatusCompleted, nil, nil); uerr != nil {
			s.logger.Error(uerr, "failed to mark operation completed", "operation_id", op.ID.String())
			return
		}
		s.metrics.OperationsCompleted.Inc()
		s.logger.Debug("operation applied",
			"operation_id", op.ID.String(), "entity", string(op.Entity))

	case errors.As(err, &divergence):
		if s.conflicts == nil {
			s.logger.Error(err, "divergence detected but no conflict recorder wired",
				"operation_id", op.ID.String())
			return
		}
		if cerr := s.conflicts.Record(ctx, op, divergence.ServerData); cerr != nil {
			s.logger.Error(cerr, "failed to record conflict", "operation_id", op.ID.String())
			return
		}
		s.metrics.OperationsConflict.Inc()

	default:
		s.handleFailure(ctx, op, err)
	}
}

// handleFailure applies the retry budget: an operation that fails with
// retry_count already at max_retries is terminally failed; otherwise it
// goes back to pending with a backoff-delayed retry_at.
func (s *Service) handleFailure(ctx context.Context, op *model.SyncOperation, applyErr error) {
	errMsg := applyErr.Error()

	if op.RetryCount >= op.MaxRetries {
		if err := s.repo.UpdateStatus(ctx, op.ID, model.StatusFailed, &errMsg, nil); err != nil {
			s.logger.Error(err, "failed to mark operation failed", "operation_id", op.ID.String())
			return
		}
		s.metrics.OperationsFailed.Inc()
		s.logger.Error(applyErr, "operation failed terminally",
			"operation_id", op.ID.String(),
			"entity", string(op.Entity),
			"retry_count", op.RetryCount)
		return
	}

	attempt := op.RetryCount + 1
	retryAt := s.nowFn().Add(backoff(s.cfg.BackoffBase, s.cfg.BackoffMax, attempt))
	if err := s.repo.IncrementRetry(ctx, op.ID, model.StatusPending, &errMsg, &retryAt); err != nil {
		s.logger.Error(err, "failed to schedule retry", "operation_id", op.ID.String())
		return
	}
	op.RetryCount = attempt
	s.metrics.OperationRetries.WithLabelValues(string(op.Entity)).Inc()
	s.logger.Warn("operation apply failed, scheduled retry",
		"operation_id", op.ID.String(),
		"entity", string(op.Entity),
		"attempt", attempt,
		"error", errMsg)
}

// applyWithTimeout dispatches to the entity's applier under a deadline so a
// hung backend call cannot pin the operation's slot.
func (s *Service) applyWithTimeout(ctx context.Context, op *model.SyncOperation) error {
	applier, err := s.appliers.Get(op.Entity)
	if err != nil {
		return err
	}

	applyCtx, cancel := context.WithTimeout(ctx, s.cfg.ApplyTimeout)
	defer cancel()

	return applier.Apply(applyCtx, op)
}

// Retry manually replays a terminally failed operation with a fresh retry
// budget.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error {
	op, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if op == nil {
		return apperrors.NotFound("operation", nil)
	}
	if op.Status != model.StatusFailed {
		return apperrors.BadRequest(
			fmt.Sprintf("operation is %s; only failed operations can be replayed", op.Status), nil)
	}

	if err := s.repo.Requeue(ctx, id, nil); err != nil {
		return err
	}
	if s.network.Online() {
		s.TriggerDrain()
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.SyncOperation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status model.OperationStatus, limit int) ([]*model.SyncOperation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByStatus(ctx, status, limit)
}

func (s *Service) Stats(ctx context.Context) (*model.QueueStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.QueueDepth.Set(float64(stats.Pending))
	return stats, nil
}
