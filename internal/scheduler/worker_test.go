package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/internal/tasks"
	"github.com/brewit-money/wallet/types"
)

func newWorker(store *memStore, q *mockEnqueuer, now time.Time) *Worker {
	return NewWorker(logrus.New(), q, store, nil, WithWorkerClock(func() time.Time { return now }))
}

func TestWorker_EnqueuesDueJobs(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	due := activeJob(now.Add(-time.Second), now.Add(time.Hour), 60)
	later := activeJob(now.Add(time.Minute), now.Add(time.Hour), 60)
	store := newMemStore(due, later)

	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == tasks.TypeExecuteJob
	})).Return(&asynq.TaskInfo{ID: "task-1"}, nil).Once()

	require.NoError(t, newWorker(store, q, now).Enqueue(context.Background()))
	q.AssertExpectations(t)

	task := q.Calls[0].Arguments.Get(1).(*asynq.Task)
	var p ExecutePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, due.ID, p.JobID)
	assert.True(t, p.ScheduledAt.Equal(now.Add(-time.Second)))

	got, err := store.Get(context.Background(), due.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextExecution)
	assert.Equal(t, now.Add(59*time.Second), got.NextExecution.UTC())
	assert.Equal(t, types.JobActive, got.Status)
}

func TestWorker_TaskTimeout(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore(activeJob(now, now.Add(time.Hour), 60))

	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.Anything).Return(&asynq.TaskInfo{}, nil).Once()

	w := NewWorker(logrus.New(), q, store, nil,
		WithWorkerClock(func() time.Time { return now }),
		WithTaskTimeout(8*time.Minute),
	)
	require.NoError(t, w.Enqueue(context.Background()))

	require.Len(t, q.opts, 1)
	var timeout interface{}
	for _, opt := range q.opts[0] {
		if opt.Type() == asynq.TimeoutOpt {
			timeout = opt.Value()
		}
	}
	assert.Equal(t, 8*time.Minute, timeout)
}

func TestWorker_SkipsMissedSlots(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := activeJob(now.Add(-10*time.Minute), now.Add(time.Hour), 60)
	store := newMemStore(stale)

	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.Anything).Return(&asynq.TaskInfo{}, nil).Once()

	require.NoError(t, newWorker(store, q, now).Enqueue(context.Background()))

	got, _ := store.Get(context.Background(), stale.ID)
	require.NotNil(t, got.NextExecution)
	assert.Equal(t, now.Add(time.Minute), got.NextExecution.UTC())
}

func TestWorker_CompletesPastEnd(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := activeJob(now, now.Add(30*time.Second), 60)
	store := newMemStore(last)

	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.Anything).Return(&asynq.TaskInfo{}, nil).Once()

	require.NoError(t, newWorker(store, q, now).Enqueue(context.Background()))
	q.AssertExpectations(t)

	got, _ := store.Get(context.Background(), last.ID)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Nil(t, got.NextExecution)
}

func TestWorker_DuplicateTaskIsNotAnError(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := activeJob(now, now.Add(time.Hour), 3600)
	store := newMemStore(job)

	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict).Once()

	require.NoError(t, newWorker(store, q, now).Enqueue(context.Background()))
	got, _ := store.Get(context.Background(), job.ID)
	assert.Equal(t, types.JobActive, got.Status)
	assert.Equal(t, now.Add(time.Hour), got.NextExecution.UTC())
}

func TestWorker_EnqueueFailureKeepsSlot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := activeJob(now, now.Add(time.Hour), 60)
	store := newMemStore(job)

	q := &mockEnqueuer{}
	q.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("redis down")).Once()

	err := newWorker(store, q, now).Enqueue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	got, _ := store.Get(context.Background(), job.ID)
	assert.True(t, got.NextExecution.Equal(now))
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q := &mockEnqueuer{}
	w := newWorker(newMemStore(), q, time.Now())
	w.pollInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, w.Run(ctx))
	q.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
}
