package invest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/jobs"
	"github.com/brewit-money/wallet/internal/uniswap"
	"github.com/brewit-money/wallet/types"
)

const statusConcurrency = 8

// List returns the account's investments. An investment whose validity window
// has closed is always history, whatever the scheduler reports.
func (s *Service) List(ctx context.Context, chainID uint64, account common.Address) (*types.InvestmentList, error) {
	n, err := s.network(chainID)
	if err != nil {
		return nil, err
	}
	invs, stats, err := n.Registry.Jobs(ctx, account)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]types.InvestmentView, len(invs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(statusConcurrency)
	for i, inv := range invs {
		views[i] = types.InvestmentView{
			Index:      i,
			JobID:      types.NewJobID(n.Deployment.ChainIDString(), account, i, inv.ValidAfter, inv.ValidUntil, inv.RefreshInterval),
			Investment: inv,
			Stats:      stats[i],
			Status:     types.InvestmentExpired,
		}
		if inv.ExpiredAt(now) {
			continue
		}
		view := &views[i]
		eg.Go(func() error {
			view.Status = s.triggerStatus(egCtx, view.JobID)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	list := &types.InvestmentList{
		Active:  []types.InvestmentView{},
		History: []types.InvestmentView{},
		NextJob: len(invs),
	}
	for _, v := range views {
		if v.Investment.ExpiredAt(now) {
			list.History = append(list.History, v)
		} else {
			list.Active = append(list.Active, v)
		}
	}
	return list, nil
}

// triggerStatus maps the scheduler state of a live investment. Scheduler
// outages degrade to active rather than failing the listing.
func (s *Service) triggerStatus(ctx context.Context, id uuid.UUID) types.InvestmentStatus {
	job, err := s.scheduler.Get(ctx, id)
	if errors.Is(err, jobs.ErrNotFound) {
		return types.InvestmentUnscheduled
	}
	if err != nil {
		s.logger.WithField("job_id", id).Warnf("failed to get trigger status: %v", err)
		return types.InvestmentActive
	}
	switch job.Status {
	case types.JobCancelled:
		return types.InvestmentCancelled
	case types.JobCompleted:
		return types.InvestmentExpired
	default:
		return types.InvestmentActive
	}
}

// PrepareCancel parks a cancellation of the job at index. The returned Hash
// has to be signed by the account's passkey; the trigger is only cancelled
// once the account accepts that signature. The on-chain record is kept.
func (s *Service) PrepareCancel(ctx context.Context, chainID uint64, account common.Address, index int) (pending *PendingOperation, err error) {
	defer func(start time.Time) { s.record("prepare_cancel", start, err) }(time.Now())

	n, err := s.network(chainID)
	if err != nil {
		return nil, err
	}
	invs, _, err := n.Registry.Jobs(ctx, account)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(invs) {
		return nil, ErrInvestmentNotFound
	}
	inv := invs[index]
	jobID := types.NewJobID(n.Deployment.ChainIDString(), account, index, inv.ValidAfter, inv.ValidUntil, inv.RefreshInterval)

	pending = &PendingOperation{
		ID:        uuid.New(),
		Kind:      OperationCancel,
		ChainID:   chainID,
		Account:   account,
		JobIndex:  &index,
		JobID:     &jobID,
		ExpiresAt: s.now().Add(s.pendingTTL),
	}
	pending.Hash = cancelDigest(pending)
	if err := s.park(ctx, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// cancelDigest binds the signature to this chain, account, job and
// operation, so it cannot be replayed for another cancellation.
func cancelDigest(p *PendingOperation) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf(
		"brewit:cancel:%d:%s:%s:%s",
		p.ChainID, p.Account.Hex(), p.JobID, p.ID,
	)))
}

func (s *Service) completeCancel(ctx context.Context, n *Network, pending *PendingOperation, signature []byte) (*Result, error) {
	if pending.JobID == nil {
		return nil, fmt.Errorf("cancel operation %s has no job", pending.ID)
	}
	logger := s.logger.WithFields(logrus.Fields{
		"operation": pending.ID,
		"account":   pending.Account.Hex(),
		"job_id":    *pending.JobID,
	})

	ok, err := chain.IsValidSignature(ctx, n.Backend, pending.Account, cancelDigest(pending), signature)
	if err != nil {
		logger.Warnf("isValidSignature failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ok {
		return nil, ErrInvalidSignature
	}

	err = s.scheduler.Cancel(ctx, *pending.JobID)
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, ErrNotScheduled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job %s: %w", *pending.JobID, err)
	}
	logger.Info("investment cancelled")
	return &Result{
		OperationID: pending.ID,
		JobID:       pending.JobID,
		Status:      string(types.JobCancelled),
	}, nil
}

func (s *Service) Quote(
	ctx context.Context,
	chainID uint64,
	tokenIn, tokenOut common.Address,
	amount string,
	fee uniswap.FeeAmount,
) (uniswap.Quote, error) {
	n, err := s.network(chainID)
	if err != nil {
		return uniswap.Quote{}, err
	}
	if n.Quoter == nil {
		return uniswap.Quote{}, ErrQuoterUnavailable
	}
	return n.Quoter.QuoteExactInputSingle(ctx, tokenIn, tokenOut, amount, fee)
}

// HandleScheduleRetry registers a trigger whose job is already on chain. A
// trigger that already exists counts as registered.
func (s *Service) HandleScheduleRetry(ctx context.Context, t *asynq.Task) error {
	var req types.ScheduleRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		s.logger.Errorf("failed to unmarshal schedule retry: %v", err)
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	_, err := s.scheduler.Schedule(ctx, req)
	var statusErr *jobs.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict {
		err = nil
	}
	if err != nil {
		s.logger.WithField("job_id", req.ID).Warnf("schedule retry failed: %v", err)
		return fmt.Errorf("failed to schedule job %s: %w", req.ID, err)
	}
	s.logger.WithField("job_id", req.ID).Info("trigger registered on retry")
	return nil
}
