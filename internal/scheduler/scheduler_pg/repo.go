package scheduler_pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brewit-money/wallet/internal/postgres"
	"github.com/brewit-money/wallet/internal/scheduler"
	"github.com/brewit-money/wallet/types"
)

const jobColumns = `id, status, chain_id, account, target, value, call_data, start_time, end_time,
	interval_seconds, next_execution, executions, created_at, updated_at`

type Repo struct {
	tx *postgres.TxHandler
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{
		tx: postgres.NewTxHandler(pool),
	}
}

func scanJob(row pgx.Row) (types.Job, error) {
	var job types.Job
	var status string
	var callData []byte
	err := row.Scan(
		&job.ID,
		&status,
		&job.ChainID,
		&job.Account,
		&job.Target,
		&job.Value,
		&callData,
		&job.StartTime,
		&job.EndTime,
		&job.Interval,
		&job.NextExecution,
		&job.Executions,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return types.Job{}, err
	}
	job.Status = types.JobStatus(status)
	job.CallData = hexutil.Encode(callData)
	return job, nil
}

func (r *Repo) Create(ctx context.Context, job types.Job) error {
	callData, err := hexutil.Decode(job.CallData)
	if err != nil {
		return fmt.Errorf("invalid call data: %w", err)
	}
	tag, err := r.tx.Try(ctx).Exec(ctx, `
		INSERT INTO jobs (id, chain_id, account, target, value, call_data, start_time, end_time,
			interval_seconds, next_execution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, job.ID, job.ChainID, job.Account, job.Target, job.Value, callData, job.StartTime, job.EndTime,
		job.Interval, job.NextExecution)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduler.ErrConflict
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (types.Job, error) {
	job, err := scanJob(r.tx.Try(ctx).QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Job{}, scheduler.ErrNotFound
	}
	if err != nil {
		return types.Job{}, fmt.Errorf("failed to query job: %w", err)
	}
	return job, nil
}

// Cancel keeps the row; only active jobs change state.
func (r *Repo) Cancel(ctx context.Context, id uuid.UUID) (types.Job, error) {
	var job types.Job
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		_, er := r.tx.Try(ctx).Exec(ctx, `
			UPDATE jobs
			SET status = 'cancelled', next_execution = NULL, updated_at = NOW()
			WHERE id = $1 AND status = 'active'
		`, id)
		if er != nil {
			return fmt.Errorf("failed to cancel job: %w", er)
		}
		job, er = r.Get(ctx, id)
		return er
	})
	if err != nil {
		return types.Job{}, err
	}
	return job, nil
}

func (r *Repo) GetDue(ctx context.Context, now time.Time) ([]types.Job, error) {
	rows, err := r.tx.Try(ctx).Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'active' AND next_execution <= $1
		ORDER BY next_execution
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over jobs: %w", err)
	}
	return jobs, nil
}

func (r *Repo) SetNext(ctx context.Context, id uuid.UUID, next time.Time) error {
	_, err := r.tx.Try(ctx).Exec(ctx, `
		UPDATE jobs
		SET next_execution = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id, next)
	if err != nil {
		return fmt.Errorf("failed to update next execution time: %w", err)
	}
	return nil
}

func (r *Repo) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := r.tx.Try(ctx).Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', next_execution = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (r *Repo) RecordExecution(ctx context.Context, exec scheduler.Execution) error {
	return r.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := r.tx.Try(ctx).Exec(ctx, `
			INSERT INTO job_executions (job_id, scheduled_at, user_op_hash, tx_hash, success, error)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''))
		`, exec.JobID, exec.ScheduledAt, exec.UserOpHash, exec.TxHash, exec.Success, exec.Error)
		if err != nil {
			return fmt.Errorf("failed to insert execution: %w", err)
		}
		if !exec.Success {
			return nil
		}
		_, err = r.tx.Try(ctx).Exec(ctx, `
			UPDATE jobs SET executions = executions + 1, updated_at = NOW() WHERE id = $1
		`, exec.JobID)
		if err != nil {
			return fmt.Errorf("failed to count execution: %w", err)
		}
		return nil
	})
}
