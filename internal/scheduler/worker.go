package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/tasks"
	"github.com/brewit-money/wallet/types"
)

const (
	defaultPollInterval     = 10 * time.Second
	defaultIterationTimeout = 30 * time.Second
	defaultTaskTimeout      = 10 * time.Minute
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExecutePayload is the body of a tasks.TypeExecuteJob task.
type ExecutePayload struct {
	JobID       uuid.UUID `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// Worker polls due jobs, enqueues one execution per due slot and moves each
// job to its next slot.
type Worker struct {
	logger *logrus.Logger

	client  Enqueuer
	queue   string
	repo    Storage
	metrics metrics.SchedulerMetrics

	pollInterval     time.Duration
	iterationTimeout time.Duration
	taskTimeout      time.Duration
	now              func() time.Time
}

type WorkerOption func(*Worker)

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithTaskTimeout sets the deadline of each execution task. It has to cover
// the executor's receipt wait and execution long poll.
func WithTaskTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.taskTimeout = d
		}
	}
}

func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.now = now
	}
}

func NewWorker(
	logger *logrus.Logger,
	client Enqueuer,
	repo Storage,
	m metrics.SchedulerMetrics,
	opts ...WorkerOption,
) *Worker {
	if m == nil {
		m = metrics.NilSchedulerMetrics{}
	}
	w := &Worker{
		logger:           logger.WithField("pkg", "scheduler.Worker").Logger,
		client:           client,
		queue:            tasks.QUEUE_NAME,
		repo:             repo,
		metrics:          m,
		pollInterval:     defaultPollInterval,
		iterationTimeout: defaultIterationTimeout,
		taskTimeout:      defaultTaskTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	err := w.Enqueue(ctx)
	if err != nil {
		w.logger.Errorf("processing error, continue loop: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("context done & no processing: stop worker")
			return nil
		case <-time.After(w.pollInterval):
			er := w.Enqueue(ctx)
			if er != nil {
				w.logger.Errorf("processing error, continue loop: %v", er)
			}
		}
	}
}

// Enqueue runs one poll iteration.
func (w *Worker) Enqueue(aliveCtx context.Context) error {
	ctx, cancel := context.WithTimeout(aliveCtx, w.iterationTimeout)
	defer cancel()

	now := w.now().UTC()
	due, err := w.repo.GetDue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to get due jobs: %w", err)
	}
	w.metrics.SetDueJobs(float64(len(due)))
	if len(due) == 0 {
		return nil
	}
	w.logger.WithField("due", len(due)).Info("worker tick")

	var enqueued atomic.Int64
	eg := &errgroup.Group{}
	for _, job := range due {
		eg.Go(func() error {
			ok, er := w.process(ctx, job, now)
			if er != nil {
				return fmt.Errorf("job %s: %w", job.ID, er)
			}
			if ok {
				enqueued.Add(1)
			}
			return nil
		})
	}
	err = eg.Wait()
	w.metrics.RecordEnqueued(int(enqueued.Load()))
	if err != nil {
		return fmt.Errorf("failed to process jobs: %w", err)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job types.Job, now time.Time) (bool, error) {
	if job.NextExecution == nil {
		return false, nil
	}
	scheduled := job.NextExecution.UTC()
	if scheduled.After(job.EndTime) {
		return false, w.complete(ctx, job)
	}

	buf, err := json.Marshal(ExecutePayload{JobID: job.ID, ScheduledAt: scheduled})
	if err != nil {
		return false, fmt.Errorf("failed to marshal task: %w", err)
	}
	_, err = w.client.EnqueueContext(
		ctx,
		asynq.NewTask(tasks.TypeExecuteJob, buf),
		asynq.TaskID(fmt.Sprintf("%s:%d", job.ID, scheduled.Unix())),
		asynq.MaxRetry(0),
		asynq.Timeout(w.taskTimeout),
		asynq.Retention(10*time.Minute),
		asynq.Queue(w.queue),
	)
	enqueued := err == nil
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		w.logger.WithField("job_id", job.ID).Info("execution already enqueued")
		err = nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to enqueue task: %w", err)
	}

	next, ok := NextExecution(scheduled, now, job.EndTime, time.Duration(job.Interval)*time.Second)
	if !ok {
		return enqueued, w.complete(ctx, job)
	}
	if err := w.repo.SetNext(ctx, job.ID, next); err != nil {
		return enqueued, fmt.Errorf("failed to set next: %w", err)
	}
	return enqueued, nil
}

func (w *Worker) complete(ctx context.Context, job types.Job) error {
	if err := w.repo.Complete(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	w.metrics.RecordCompleted()
	w.logger.WithField("job_id", job.ID).Info("job completed")
	return nil
}
