// Package scheduler is the trigger service: it stores DCA triggers, enqueues
// due executions and submits them with its session key.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brewit-money/wallet/types"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrConflict = errors.New("job already exists")
)

type Execution struct {
	JobID       uuid.UUID
	ScheduledAt time.Time
	UserOpHash  string
	TxHash      string
	Success     bool
	Error       string
}

type Storage interface {
	Create(ctx context.Context, job types.Job) error
	Get(ctx context.Context, id uuid.UUID) (types.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (types.Job, error)
	GetDue(ctx context.Context, now time.Time) ([]types.Job, error)
	SetNext(ctx context.Context, id uuid.UUID, next time.Time) error
	Complete(ctx context.Context, id uuid.UUID) error
	RecordExecution(ctx context.Context, exec Execution) error
}
