package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyntientops/field-sync/internal/apply"
	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/netstatus"
	"github.com/cyntientops/field-sync/pkg/logger"
	"github.com/cyntientops/field-sync/pkg/metrics"
)

// memOperationRepo is an in-memory stand-in for the postgres queue with the
// same due-selection semantics.
type memOperationRepo struct {
	mu        stdsync.Mutex
	ops       map[uuid.UUID]*model.SyncOperation
	selectDue int
}

func newMemOperationRepo() *memOperationRepo {
	return &memOperationRepo{ops: make(map[uuid.UUID]*model.SyncOperation)}
}

func (r *memOperationRepo) Create(_ context.Context, op *model.SyncOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *op
	r.ops[op.ID] = &cp
	return nil
}

func (r *memOperationRepo) Get(_ context.Context, id uuid.UUID) (*model.SyncOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return nil, nil
	}
	cp := *op
	return &cp, nil
}

func (r *memOperationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OperationStatus, errMsg *string, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return fmt.Errorf("operation not found")
	}
	op.Status = status
	op.Error = errMsg
	op.RetryAt = retryAt
	return nil
}

func (r *memOperationRepo) IncrementRetry(_ context.Context, id uuid.UUID, status model.OperationStatus, errMsg *string, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return fmt.Errorf("operation not found")
	}
	op.RetryCount++
	op.Status = status
	op.Error = errMsg
	op.RetryAt = retryAt
	return nil
}

func (r *memOperationRepo) Requeue(_ context.Context, id uuid.UUID, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return fmt.Errorf("operation not found")
	}
	if data != nil {
		op.Data = data
	}
	op.Status = model.StatusPending
	op.RetryCount = 0
	op.Error = nil
	op.RetryAt = nil
	return nil
}

func (r *memOperationRepo) SelectDue(_ context.Context, now time.Time, limit int) ([]*model.SyncOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectDue++

	var due []*model.SyncOperation
	for _, op := range r.ops {
		if op.Status != model.StatusPending {
			continue
		}
		if op.RetryAt != nil && op.RetryAt.After(now) {
			continue
		}
		cp := *op
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority.Weight() != due[j].Priority.Weight() {
			return due[i].Priority.Weight() > due[j].Priority.Weight()
		}
		return due[i].Timestamp.Before(due[j].Timestamp)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memOperationRepo) ListByStatus(_ context.Context, status model.OperationStatus, limit int) ([]*model.SyncOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SyncOperation
	for _, op := range r.ops {
		if op.Status == status {
			cp := *op
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memOperationRepo) CountPending(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, op := range r.ops {
		if op.Status == model.StatusPending {
			count++
		}
	}
	return count, nil
}

func (r *memOperationRepo) Stats(_ context.Context) (*model.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.QueueStats{}
	for _, op := range r.ops {
		switch op.Status {
		case model.StatusPending:
			stats.Pending++
		case model.StatusSyncing:
			stats.Syncing++
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusFailed:
			stats.Failed++
		case model.StatusConflict:
			stats.Conflict++
		}
	}
	return stats, nil
}

func (r *memOperationRepo) TrimPending(_ context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*model.SyncOperation
	for _, op := range r.ops {
		if op.Status == model.StatusPending {
			pending = append(pending, op)
		}
	}
	if keep <= 0 || len(pending) <= keep {
		return 0, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority.Weight() != pending[j].Priority.Weight() {
			return pending[i].Priority.Weight() > pending[j].Priority.Weight()
		}
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})
	dropped := int64(0)
	for _, op := range pending[keep:] {
		delete(r.ops, op.ID)
		dropped++
	}
	return dropped, nil
}

func (r *memOperationRepo) DeleteCompletedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := int64(0)
	for id, op := range r.ops {
		if op.Status == model.StatusCompleted && op.UpdatedAt.Before(before) {
			delete(r.ops, id)
			deleted++
		}
	}
	return deleted, nil
}

// fakeApplier records applies and delegates the outcome to fn.
type fakeApplier struct {
	entity model.EntityType
	fn     func(op *model.SyncOperation) error

	mu      stdsync.Mutex
	applied []uuid.UUID
}

func (a *fakeApplier) Entity() model.EntityType { return a.entity }

func (a *fakeApplier) Apply(_ context.Context, op *model.SyncOperation) error {
	a.mu.Lock()
	a.applied = append(a.applied, op.ID)
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(op)
	}
	return nil
}

func (a *fakeApplier) applyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

type recordedConflict struct {
	op         *model.SyncOperation
	serverData json.RawMessage
}

type fakeRecorder struct {
	mu       stdsync.Mutex
	recorded []recordedConflict
}

func (r *fakeRecorder) Record(_ context.Context, op *model.SyncOperation, serverData json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, recordedConflict{op: op, serverData: serverData})
	return nil
}

func taskData(t *testing.T, updatedAt time.Time) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(model.TaskPayload{
		PayloadMeta: model.PayloadMeta{UpdatedAt: updatedAt},
		Title:       "Sweep lobby",
		BuildingID:  "bld-14",
		Status:      "open",
	})
	require.NoError(t, err)
	return data
}

func newTestService(t *testing.T, repo *memOperationRepo, applier *fakeApplier, cfg Config) *Service {
	t.Helper()
	registry := apply.NewRegistry(applier)
	svc := NewService(repo, registry, netstatus.StaticMonitor(false), cfg,
		logger.NewLogger(nil), metrics.NewUnregistered("test"))
	return svc
}

func enqueue(t *testing.T, svc *Service, priority model.Priority, ts time.Time) *model.SyncOperation {
	t.Helper()
	svc.nowFn = func() time.Time { return ts }
	op, err := svc.Enqueue(context.Background(), EnqueueRequest{
		Type:     model.OperationUpdate,
		Entity:   model.EntityTask,
		EntityID: "task-1",
		Data:     taskData(t, ts),
		UserID:   "worker-7",
		Priority: priority,
	})
	require.NoError(t, err)
	return op
}

func TestEnqueueValidation(t *testing.T) {
	repo := newMemOperationRepo()
	svc := newTestService(t, repo, &fakeApplier{entity: model.EntityTask}, Config{})

	cases := []struct {
		name string
		req  EnqueueRequest
	}{
		{"bad type", EnqueueRequest{Type: "upsert", Entity: model.EntityTask, EntityID: "t", Data: taskData(t, time.Now())}},
		{"bad entity", EnqueueRequest{Type: model.OperationCreate, Entity: "tenant", EntityID: "t", Data: taskData(t, time.Now())}},
		{"missing entity id", EnqueueRequest{Type: model.OperationCreate, Entity: model.EntityTask, Data: taskData(t, time.Now())}},
		{"malformed payload", EnqueueRequest{Type: model.OperationCreate, Entity: model.EntityTask, EntityID: "t", Data: json.RawMessage(`{`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Enqueue(context.Background(), tc.req)
			assert.Error(t, err)
		})
	}
}

func TestEnqueueDefaultsPriorityAndRetries(t *testing.T) {
	repo := newMemOperationRepo()
	svc := newTestService(t, repo, &fakeApplier{entity: model.EntityTask}, Config{MaxRetries: 4})

	op, err := svc.Enqueue(context.Background(), EnqueueRequest{
		Type:     model.OperationCreate,
		Entity:   model.EntityTask,
		EntityID: "task-9",
		Data:     taskData(t, time.Now()),
		UserID:   "worker-7",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityMedium, op.Priority)
	assert.Equal(t, 4, op.MaxRetries)
	assert.Equal(t, model.StatusPending, op.Status)
}

func TestDrainCompletesOperation(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{entity: model.EntityTask}
	svc := newTestService(t, repo, applier, Config{})

	op := enqueue(t, svc, model.PriorityMedium, time.Now())

	svc.network = netstatus.StaticMonitor(true)
	require.NoError(t, svc.Drain(context.Background()))

	assert.Equal(t, 1, applier.applyCount())
	stored, err := repo.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestDrainOrdersByPriorityThenAge(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{entity: model.EntityTask}
	// Batch size 1 so apply order mirrors selection order.
	svc := newTestService(t, repo, applier, Config{BatchSize: 1})

	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	low := enqueue(t, svc, model.PriorityLow, base)
	critical := enqueue(t, svc, model.PriorityCritical, base.Add(2*time.Second))
	highOld := enqueue(t, svc, model.PriorityHigh, base.Add(time.Second))
	highNew := enqueue(t, svc, model.PriorityHigh, base.Add(3*time.Second))

	svc.network = netstatus.StaticMonitor(true)
	svc.nowFn = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, svc.Drain(context.Background()))

	require.Len(t, applier.applied, 4)
	assert.Equal(t, []uuid.UUID{critical.ID, highOld.ID, highNew.ID, low.ID}, applier.applied)
}

func TestRetryBudgetExhaustion(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{
		entity: model.EntityTask,
		fn:     func(*model.SyncOperation) error { return errors.New("backend unavailable") },
	}
	svc := newTestService(t, repo, applier, Config{BackoffBase: time.Second, BackoffMax: time.Minute})

	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	op, err := svc.Enqueue(context.Background(), EnqueueRequest{
		Type:       model.OperationUpdate,
		Entity:     model.EntityTask,
		EntityID:   "task-1",
		Data:       taskData(t, base),
		UserID:     "worker-7",
		MaxRetries: 2,
	})
	require.NoError(t, err)

	svc.network = netstatus.StaticMonitor(true)

	// Each drain pass makes one attempt; the backoff keeps the operation out
	// of the same pass. It returns to pending exactly max_retries times.
	for attempt := 1; attempt <= 2; attempt++ {
		svc.nowFn = func() time.Time { return base.Add(time.Duration(attempt) * time.Hour) }
		require.NoError(t, svc.Drain(context.Background()))

		stored, err := repo.Get(context.Background(), op.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, stored.Status, "attempt %d", attempt)
		assert.Equal(t, attempt, stored.RetryCount)
		require.NotNil(t, stored.RetryAt)
		require.NotNil(t, stored.Error)
	}

	svc.nowFn = func() time.Time { return base.Add(10 * time.Hour) }
	require.NoError(t, svc.Drain(context.Background()))

	stored, err := repo.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, 3, applier.applyCount())

	// Terminal failures are never picked up again.
	require.NoError(t, svc.Drain(context.Background()))
	assert.Equal(t, 3, applier.applyCount())
}

func TestDivergenceRecordsConflict(t *testing.T) {
	repo := newMemOperationRepo()
	serverCopy := json.RawMessage(`{"title":"Sweep lobby","status":"done","updated_at":"2026-08-23T08:00:00Z"}`)
	applier := &fakeApplier{
		entity: model.EntityTask,
		fn:     func(*model.SyncOperation) error { return &apply.DivergenceError{ServerData: serverCopy} },
	}
	svc := newTestService(t, repo, applier, Config{})
	recorder := &fakeRecorder{}
	svc.SetConflictRecorder(recorder)

	op := enqueue(t, svc, model.PriorityHigh, time.Now())

	svc.network = netstatus.StaticMonitor(true)
	require.NoError(t, svc.Drain(context.Background()))

	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, op.ID, recorder.recorded[0].op.ID)
	assert.Equal(t, serverCopy, recorder.recorded[0].serverData)

	// The recorder owns the status transition; a fake that does nothing
	// leaves the operation in syncing, so only verify no retry was burned.
	stored, err := repo.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestDrainSuppressedOffline(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{entity: model.EntityTask}
	svc := newTestService(t, repo, applier, Config{})

	enqueue(t, svc, model.PriorityMedium, time.Now())

	require.NoError(t, svc.Drain(context.Background()))
	assert.Equal(t, 0, applier.applyCount())
	assert.Equal(t, 0, repo.selectDue)
}

func TestDrainSingleFlight(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{entity: model.EntityTask}
	svc := newTestService(t, repo, applier, Config{})
	svc.network = netstatus.StaticMonitor(true)

	svc.draining.Store(true)
	require.NoError(t, svc.Drain(context.Background()))
	assert.Equal(t, 0, repo.selectDue)

	svc.draining.Store(false)
	require.NoError(t, svc.Drain(context.Background()))
	assert.Greater(t, repo.selectDue, 0)
}

func TestQueueCapShedsLowestPriority(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{entity: model.EntityTask}
	svc := newTestService(t, repo, applier, Config{QueueCap: 2})

	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	low := enqueue(t, svc, model.PriorityLow, base)
	enqueue(t, svc, model.PriorityHigh, base.Add(time.Second))
	enqueue(t, svc, model.PriorityCritical, base.Add(2*time.Second))

	pending, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	dropped, err := repo.Get(context.Background(), low.ID)
	require.NoError(t, err)
	assert.Nil(t, dropped)
}

func TestManualRetryReplaysFailedOperation(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{entity: model.EntityTask}
	svc := newTestService(t, repo, applier, Config{})

	op := enqueue(t, svc, model.PriorityMedium, time.Now())

	errMsg := "backend unavailable"
	require.NoError(t, repo.UpdateStatus(context.Background(), op.ID, model.StatusFailed, &errMsg, nil))

	require.NoError(t, svc.Retry(context.Background(), op.ID))

	stored, err := repo.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Nil(t, stored.Error)
}

func TestManualRetryRejectsNonFailed(t *testing.T) {
	repo := newMemOperationRepo()
	svc := newTestService(t, repo, &fakeApplier{entity: model.EntityTask}, Config{})

	op := enqueue(t, svc, model.PriorityMedium, time.Now())
	err := svc.Retry(context.Background(), op.ID)
	assert.Error(t, err)

	err = svc.Retry(context.Background(), uuid.New())
	assert.Error(t, err)
}

type fakePublisher struct {
	mu     stdsync.Mutex
	topics []string
	events []interface{}
}

func (p *fakePublisher) Publish(_ context.Context, topic string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, message)
	return nil
}

func TestDrainPublishesCompletionEvent(t *testing.T) {
	repo := newMemOperationRepo()
	applier := &fakeApplier{entity: model.EntityTask}
	svc := newTestService(t, repo, applier, Config{})
	publisher := &fakePublisher{}
	svc.SetEventPublisher(publisher)

	enqueue(t, svc, model.PriorityMedium, time.Now())

	svc.network = netstatus.StaticMonitor(true)
	require.NoError(t, svc.Drain(context.Background()))

	require.Len(t, publisher.topics, 1)
	assert.Equal(t, "sync:drained", publisher.topics[0])

	event, ok := publisher.events[0].(DrainEvent)
	require.True(t, ok)
	assert.Equal(t, 0, event.Pending)
}

func TestStats(t *testing.T) {
	repo := newMemOperationRepo()
	svc := newTestService(t, repo, &fakeApplier{entity: model.EntityTask}, Config{})

	enqueue(t, svc, model.PriorityMedium, time.Now())
	enqueue(t, svc, model.PriorityHigh, time.Now())

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0, stats.Failed)
}
