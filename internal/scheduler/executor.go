package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/types"
)

// recordTimeout bounds the execution insert, which runs even after the task
// deadline so the operation hash is not lost.
const recordTimeout = 10 * time.Second

const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
	ExecutionSkipped = "skipped"
)

// Submitter sends user operations on one chain. *aa.Client satisfies it.
type Submitter interface {
	SendTransactions(
		ctx context.Context,
		account, validator common.Address,
		calls []types.Call,
		signer aa.Signer,
	) (*aa.Receipt, error)
	WaitForExecution(ctx context.Context, hash common.Hash) (*aa.Receipt, error)
}

// Network is what the executor needs to submit on one chain.
type Network struct {
	Submitter        Submitter
	SessionValidator common.Address
}

type Executor struct {
	logger   *logrus.Logger
	repo     Storage
	networks map[string]Network
	signer   aa.Signer
	metrics  metrics.SchedulerMetrics
}

// NewExecutor keys networks by decimal chain ID.
func NewExecutor(
	repo Storage,
	networks map[string]Network,
	signer aa.Signer,
	m metrics.SchedulerMetrics,
	logger *logrus.Logger,
) *Executor {
	if m == nil {
		m = metrics.NilSchedulerMetrics{}
	}
	return &Executor{
		logger:   logger.WithField("pkg", "scheduler.Executor").Logger,
		repo:     repo,
		networks: networks,
		signer:   signer,
		metrics:  m,
	}
}

func (e *Executor) HandleExecuteJob(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var p ExecutePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		e.logger.WithError(err).Error("json.Unmarshal")
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	logger := e.logger.WithFields(logrus.Fields{
		"job_id":       p.JobID,
		"scheduled_at": p.ScheduledAt,
	})

	job, err := e.repo.Get(ctx, p.JobID)
	if errors.Is(err, ErrNotFound) {
		logger.Warn("job not found, skipping execution")
		e.metrics.RecordExecution(ExecutionSkipped, time.Since(start))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	// Completed jobs still run the slot that was enqueued before completion.
	if job.Status == types.JobCancelled {
		logger.Info("job cancelled, skipping execution")
		e.metrics.RecordExecution(ExecutionSkipped, time.Since(start))
		return nil
	}

	exec := Execution{
		JobID:       job.ID,
		ScheduledAt: p.ScheduledAt,
	}
	rec, hash, err := e.execute(ctx, job)
	if hash != (common.Hash{}) {
		exec.UserOpHash = hash.Hex()
	}
	if rec != nil {
		exec.UserOpHash = rec.UserOpHash.Hex()
		exec.TxHash = rec.Receipt.TransactionHash.Hex()
	}
	status := ExecutionSuccess
	if err != nil {
		status = ExecutionFailed
		exec.Error = err.Error()
		logger.WithError(err).Error("job execution failed")
	} else {
		exec.Success = true
		logger.WithFields(logrus.Fields{
			"user_op_hash": exec.UserOpHash,
			"tx_hash":      exec.TxHash,
		}).Info("job executed")
	}
	e.metrics.RecordExecution(status, time.Since(start))

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if er := e.repo.RecordExecution(recordCtx, exec); er != nil {
		return fmt.Errorf("failed to record execution: %w", er)
	}
	return nil
}

// execute returns the recovered operation hash when the receipt wait timed
// out, so the execution row can still point at the operation.
func (e *Executor) execute(ctx context.Context, job types.Job) (*aa.Receipt, common.Hash, error) {
	network, ok := e.networks[job.ChainID]
	if !ok {
		return nil, common.Hash{}, fmt.Errorf("unsupported chain %s", job.ChainID)
	}
	data, err := hexutil.Decode(job.CallData)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("invalid call data: %w", err)
	}
	call := types.Call{
		Target: common.HexToAddress(job.Target),
		Value:  big.NewInt(job.Value),
		Data:   data,
	}

	rec, err := network.Submitter.SendTransactions(
		ctx,
		common.HexToAddress(job.Account),
		network.SessionValidator,
		[]types.Call{call},
		e.signer,
	)
	if err == nil {
		return rec, common.Hash{}, nil
	}
	hash, ok := aa.RecoverHash(err)
	if !ok || errors.Is(err, aa.ErrReverted) {
		return rec, hash, err
	}
	e.logger.WithField("hash", hash.Hex()).Info("receipt timed out, waiting for execution")
	rec, err = network.Submitter.WaitForExecution(ctx, hash)
	return rec, hash, err
}
