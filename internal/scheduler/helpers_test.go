package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"github.com/brewit-money/wallet/types"
)

type memStore struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]types.Job
	executions []Execution
	completed  []uuid.UUID
}

func newMemStore(jobs ...types.Job) *memStore {
	s := &memStore{jobs: make(map[uuid.UUID]types.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *memStore) Create(_ context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrConflict
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return j, nil
}

func (s *memStore) Cancel(_ context.Context, id uuid.UUID) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	if j.Status == types.JobActive {
		j.Status = types.JobCancelled
		j.NextExecution = nil
		s.jobs[id] = j
	}
	return j, nil
}

func (s *memStore) GetDue(_ context.Context, now time.Time) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Job
	for _, j := range s.jobs {
		if j.Status == types.JobActive && j.NextExecution != nil && !j.NextExecution.After(now) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *memStore) SetNext(_ context.Context, id uuid.UUID, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.NextExecution = &next
	s.jobs[id] = j
	return nil
}

func (s *memStore) Complete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.Status = types.JobCompleted
	j.NextExecution = nil
	s.jobs[id] = j
	s.completed = append(s.completed, id)
	return nil
}

func (s *memStore) RecordExecution(ctx context.Context, exec Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, exec)
	if exec.Success {
		j := s.jobs[exec.JobID]
		j.Executions++
		s.jobs[exec.JobID] = j
	}
	return nil
}

type mockEnqueuer struct {
	mock.Mock

	optsMu sync.Mutex
	opts   [][]asynq.Option
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.optsMu.Lock()
	m.opts = append(m.opts, opts)
	m.optsMu.Unlock()
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

const (
	testAccount = "0x1111111111111111111111111111111111111111"
	testTarget  = "0xD7945bbAB1A41a1C3736ED5b2411beA809a2ee2b"
)

func activeJob(next, end time.Time, interval int64) types.Job {
	return types.Job{
		ID:            uuid.New(),
		Status:        types.JobActive,
		ChainID:       "8453",
		Account:       testAccount,
		Target:        testTarget,
		CallData:      "0xdeadbeef",
		StartTime:     next.Add(-time.Hour),
		EndTime:       end,
		Interval:      interval,
		NextExecution: &next,
	}
}
