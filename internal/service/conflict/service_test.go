package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyntientops/field-sync/internal/model"
	apperrors "github.com/cyntientops/field-sync/pkg/errors"
	"github.com/cyntientops/field-sync/pkg/logger"
)

type memConflictRepo struct {
	mu        sync.Mutex
	conflicts map[uuid.UUID]*model.SyncConflict
}

func newMemConflictRepo() *memConflictRepo {
	return &memConflictRepo{conflicts: make(map[uuid.UUID]*model.SyncConflict)}
}

func (r *memConflictRepo) Create(_ context.Context, c *model.SyncConflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.conflicts[c.ID] = &cp
	return nil
}

func (r *memConflictRepo) Get(_ context.Context, id uuid.UUID) (*model.SyncConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conflicts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memConflictRepo) GetUnresolvedByOperation(_ context.Context, operationID uuid.UUID) (*model.SyncConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conflicts {
		if c.OperationID == operationID && c.Resolution == model.ResolutionPending {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memConflictRepo) ListUnresolved(_ context.Context, limit int) ([]*model.SyncConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SyncConflict
	for _, c := range r.conflicts {
		if c.Resolution == model.ResolutionPending {
			cp := *c
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memConflictRepo) MarkResolved(_ context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedData []byte, resolvedBy string, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conflicts[id]
	if !ok {
		return fmt.Errorf("conflict not found")
	}
	if c.Resolution == model.ResolutionResolved {
		return fmt.Errorf("conflict already resolved")
	}
	c.Resolution = model.ResolutionResolved
	c.Strategy = strategy
	c.ResolvedData = resolvedData
	c.ResolvedBy = &resolvedBy
	c.ResolvedAt = &resolvedAt
	return nil
}

// stubOperationRepo records the status and requeue calls the conflict
// service makes; nothing else is exercised here.
type stubOperationRepo struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]model.OperationStatus
	requeued map[uuid.UUID][]byte
}

func newStubOperationRepo() *stubOperationRepo {
	return &stubOperationRepo{
		statuses: make(map[uuid.UUID]model.OperationStatus),
		requeued: make(map[uuid.UUID][]byte),
	}
}

func (r *stubOperationRepo) Create(context.Context, *model.SyncOperation) error { return nil }
func (r *stubOperationRepo) Get(context.Context, uuid.UUID) (*model.SyncOperation, error) {
	return nil, nil
}

func (r *stubOperationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OperationStatus, _ *string, _ *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	return nil
}

func (r *stubOperationRepo) IncrementRetry(context.Context, uuid.UUID, model.OperationStatus, *string, *time.Time) error {
	return nil
}

func (r *stubOperationRepo) Requeue(_ context.Context, id uuid.UUID, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requeued[id] = data
	r.statuses[id] = model.StatusPending
	return nil
}

func (r *stubOperationRepo) SelectDue(context.Context, time.Time, int) ([]*model.SyncOperation, error) {
	return nil, nil
}

func (r *stubOperationRepo) ListByStatus(context.Context, model.OperationStatus, int) ([]*model.SyncOperation, error) {
	return nil, nil
}

func (r *stubOperationRepo) CountPending(context.Context) (int, error) { return 0, nil }

func (r *stubOperationRepo) Stats(context.Context) (*model.QueueStats, error) {
	return &model.QueueStats{}, nil
}

func (r *stubOperationRepo) TrimPending(context.Context, int) (int64, error) { return 0, nil }
func (r *stubOperationRepo) DeleteCompletedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubDrain struct {
	mu    sync.Mutex
	calls int
}

func (d *stubDrain) TriggerDrain() {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
}

func (d *stubDrain) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testOperation(opType model.OperationType, data json.RawMessage) *model.SyncOperation {
	return &model.SyncOperation{
		ID:       uuid.New(),
		Type:     opType,
		Entity:   model.EntityTask,
		EntityID: "task-1",
		Data:     data,
		UserID:   "worker-7",
		Priority: model.PriorityMedium,
		Status:   model.StatusSyncing,
	}
}

func TestClassify(t *testing.T) {
	older := `{"updated_at":"2026-08-20T10:00:00Z"}`
	newer := `{"updated_at":"2026-08-22T10:00:00Z"}`

	cases := []struct {
		name       string
		op         *model.SyncOperation
		serverData json.RawMessage
		want       model.ConflictType
	}{
		{
			name:       "client delete server keeps",
			op:         testOperation(model.OperationDelete, json.RawMessage(older)),
			serverData: json.RawMessage(older),
			want:       model.ConflictDeletion,
		},
		{
			name:       "tombstone payload",
			op:         testOperation(model.OperationUpdate, json.RawMessage(`{"deleted":true,"updated_at":"2026-08-22T10:00:00Z"}`)),
			serverData: json.RawMessage(older),
			want:       model.ConflictDeletion,
		},
		{
			name:       "both deleted is not a deletion conflict",
			op:         testOperation(model.OperationDelete, json.RawMessage(older)),
			serverData: json.RawMessage(`{"deleted":true,"updated_at":"2026-08-22T10:00:00Z"}`),
			want:       model.ConflictDataMismatch,
		},
		{
			name:       "client edit newer than server",
			op:         testOperation(model.OperationUpdate, json.RawMessage(newer)),
			serverData: json.RawMessage(older),
			want:       model.ConflictConcurrentEdit,
		},
		{
			name:       "server newer than client",
			op:         testOperation(model.OperationUpdate, json.RawMessage(older)),
			serverData: json.RawMessage(newer),
			want:       model.ConflictDataMismatch,
		},
		{
			name:       "no timestamps",
			op:         testOperation(model.OperationUpdate, json.RawMessage(`{}`)),
			serverData: json.RawMessage(`{}`),
			want:       model.ConflictDataMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.op, tc.serverData))
		})
	}
}

func TestRecordManualParksOperation(t *testing.T) {
	conflicts := newMemConflictRepo()
	operations := newStubOperationRepo()
	svc := NewService(conflicts, operations, model.StrategyManual, logger.NewLogger(nil))

	op := testOperation(model.OperationUpdate, json.RawMessage(`{"updated_at":"2026-08-22T10:00:00Z"}`))
	serverData := json.RawMessage(`{"updated_at":"2026-08-23T10:00:00Z"}`)

	require.NoError(t, svc.Record(context.Background(), op, serverData))

	assert.Equal(t, model.StatusConflict, operations.statuses[op.ID])
	assert.Empty(t, operations.requeued)

	unresolved, err := conflicts.ListUnresolved(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, op.ID, unresolved[0].OperationID)
	assert.Equal(t, model.ConflictDataMismatch, unresolved[0].ConflictType)
	assert.Equal(t, model.ResolutionPending, unresolved[0].Resolution)
}

func TestRecordAutoResolvesUnderPolicy(t *testing.T) {
	conflicts := newMemConflictRepo()
	operations := newStubOperationRepo()
	drain := &stubDrain{}
	svc := NewService(conflicts, operations, model.StrategyServerWins, logger.NewLogger(nil))
	svc.SetDrainTrigger(drain)

	op := testOperation(model.OperationUpdate, json.RawMessage(`{"updated_at":"2026-08-22T10:00:00Z"}`))
	serverData := json.RawMessage(`{"title":"server copy","updated_at":"2026-08-23T10:00:00Z"}`)

	require.NoError(t, svc.Record(context.Background(), op, serverData))

	unresolved, err := conflicts.ListUnresolved(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	assert.Equal(t, []byte(serverData), operations.requeued[op.ID])
	assert.Equal(t, model.StatusPending, operations.statuses[op.ID])
	assert.Equal(t, 1, drain.count())
}

func TestInvalidStrategyFallsBackToManual(t *testing.T) {
	svc := NewService(newMemConflictRepo(), newStubOperationRepo(), "newest_wins", logger.NewLogger(nil))
	assert.Equal(t, model.StrategyManual, svc.strategy)
}

func TestResolveClientWins(t *testing.T) {
	conflicts := newMemConflictRepo()
	operations := newStubOperationRepo()
	drain := &stubDrain{}
	svc := NewService(conflicts, operations, model.StrategyManual, logger.NewLogger(nil))
	svc.SetDrainTrigger(drain)

	clientData := json.RawMessage(`{"title":"client copy","updated_at":"2026-08-22T10:00:00Z"}`)
	op := testOperation(model.OperationUpdate, clientData)
	require.NoError(t, svc.Record(context.Background(), op, json.RawMessage(`{}`)))

	unresolved, err := conflicts.ListUnresolved(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	require.NoError(t, svc.Resolve(context.Background(), unresolved[0].ID, model.StrategyClientWins, nil, "ops@cyntient"))

	resolved, err := conflicts.Get(context.Background(), unresolved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionResolved, resolved.Resolution)
	assert.Equal(t, model.StrategyClientWins, resolved.Strategy)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "ops@cyntient", *resolved.ResolvedBy)

	assert.Equal(t, []byte(clientData), operations.requeued[op.ID])
	assert.Equal(t, 1, drain.count())
}

func TestResolveMergeRequiresData(t *testing.T) {
	conflicts := newMemConflictRepo()
	operations := newStubOperationRepo()
	svc := NewService(conflicts, operations, model.StrategyManual, logger.NewLogger(nil))

	op := testOperation(model.OperationUpdate, json.RawMessage(`{}`))
	require.NoError(t, svc.Record(context.Background(), op, json.RawMessage(`{}`)))

	unresolved, err := conflicts.ListUnresolved(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	err = svc.Resolve(context.Background(), unresolved[0].ID, model.StrategyMerge, nil, "ops@cyntient")
	require.Error(t, err)

	merged := json.RawMessage(`{"title":"merged","updated_at":"2026-08-23T10:00:00Z"}`)
	require.NoError(t, svc.Resolve(context.Background(), unresolved[0].ID, model.StrategyMerge, merged, "ops@cyntient"))
	assert.Equal(t, []byte(merged), operations.requeued[op.ID])
}

func TestResolveRejectsInvalidAndRepeated(t *testing.T) {
	conflicts := newMemConflictRepo()
	operations := newStubOperationRepo()
	svc := NewService(conflicts, operations, model.StrategyManual, logger.NewLogger(nil))

	op := testOperation(model.OperationUpdate, json.RawMessage(`{}`))
	require.NoError(t, svc.Record(context.Background(), op, json.RawMessage(`{}`)))

	unresolved, err := conflicts.ListUnresolved(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	id := unresolved[0].ID

	err = svc.Resolve(context.Background(), id, "newest_wins", nil, "ops@cyntient")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)

	err = svc.Resolve(context.Background(), uuid.New(), model.StrategyServerWins, nil, "ops@cyntient")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)

	require.NoError(t, svc.Resolve(context.Background(), id, model.StrategyServerWins, nil, "ops@cyntient"))

	err = svc.Resolve(context.Background(), id, model.StrategyServerWins, nil, "ops@cyntient")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
}
