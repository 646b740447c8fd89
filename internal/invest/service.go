// Package invest orchestrates DCA plans: it composes the on-chain setup,
// hands the user operation out for a passkey signature, submits it and then
// registers the scheduler trigger.
package invest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/jobs"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/plan"
	"github.com/brewit-money/wallet/internal/storage"
	"github.com/brewit-money/wallet/internal/tasks"
	"github.com/brewit-money/wallet/types"
)

const (
	defaultPendingTTL = 15 * time.Minute
	// sessionKeyMinLifetime keeps the scheduler's key usable for at least a
	// day even for short plans.
	sessionKeyMinLifetime = 24 * time.Hour
	scheduleRetryMax      = 5
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Service struct {
	networks   map[uint64]*Network
	scheduler  jobs.Scheduler
	store      storage.Storage
	queue      Enqueuer
	metrics    metrics.InvestMetrics
	logger     *logrus.Logger
	pendingTTL time.Duration
	now        func() time.Time
}

type Option func(*Service)

func WithPendingTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pendingTTL = d
		}
	}
}

// WithQueue enables retrying failed trigger registrations in the background.
func WithQueue(q Enqueuer) Option {
	return func(s *Service) {
		s.queue = q
	}
}

func WithMetrics(m metrics.InvestMetrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	networks []*Network,
	scheduler jobs.Scheduler,
	store storage.Storage,
	logger *logrus.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		networks:   make(map[uint64]*Network, len(networks)),
		scheduler:  scheduler,
		store:      store,
		metrics:    metrics.NilInvestMetrics{},
		logger:     logger.WithField("pkg", "invest.Service").Logger,
		pendingTTL: defaultPendingTTL,
		now:        time.Now,
	}
	for _, n := range networks {
		s.networks[n.Deployment.ChainID] = n
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) network(chainID uint64) (*Network, error) {
	n, ok := s.networks[chainID]
	if !ok {
		return nil, invalid("chain_id", "chain %d is not supported", chainID)
	}
	return n, nil
}

func (s *Service) record(operation string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	var vErr *ValidationError
	var pErr *PartialFailureError
	switch {
	case err == nil:
	case errors.As(err, &vErr):
		outcome = metrics.OutcomeInvalid
	case errors.As(err, &pErr):
		outcome = metrics.OutcomePartialFailure
	default:
		outcome = metrics.OutcomeFailed
	}
	s.metrics.RecordOperation(operation, outcome, time.Since(start))
}

type params struct {
	account     common.Address
	source      common.Address
	target      common.Address
	vault       common.Address
	start       uint64
	end         uint64
	interval    uint64
	dummy       []byte
	amountInput string
}

func address(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, invalid(field, "%q is not an address", value)
	}
	return common.HexToAddress(value), nil
}

func dummySignature(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(value)
	if err != nil {
		return nil, invalid("dummy_signature", "%v", err)
	}
	return b, nil
}

func (s *Service) validate(req types.InvestmentRequest) (params, error) {
	var p params
	var err error

	if strings.TrimSpace(req.Amount) == "" {
		return p, invalid("amount", "amount is required")
	}
	p.amountInput = strings.TrimSpace(req.Amount)
	if p.account, err = address("account", req.Account); err != nil {
		return p, err
	}
	if p.source, err = address("source_token", req.SourceToken); err != nil {
		return p, err
	}
	if p.target, err = address("target_token", req.TargetToken); err != nil {
		return p, err
	}
	if p.source == p.target {
		return p, invalid("target_token", "source and target tokens must differ")
	}
	if req.Vault != "" {
		if p.vault, err = address("vault", req.Vault); err != nil {
			return p, err
		}
	}

	now := s.now().Unix()
	if req.StartTime <= 0 || req.EndTime <= 0 {
		return p, invalid("start_time", "start and end times are required")
	}
	if req.EndTime <= req.StartTime {
		return p, invalid("end_time", "end time must be after start time")
	}
	if req.EndTime <= now {
		return p, invalid("end_time", "end time must be in the future")
	}
	p.start, p.end = uint64(req.StartTime), uint64(req.EndTime)

	interval, err := types.ConvertToSeconds(req.Frequency, req.FrequencyUnit)
	if err != nil {
		return p, invalid("frequency", "%v", err)
	}
	p.interval = uint64(interval)

	if p.dummy, err = dummySignature(req.DummySignature); err != nil {
		return p, err
	}
	return p, nil
}

// Prepare composes the setup of a DCA plan into one unsigned user operation
// and parks it until the signature arrives.
func (s *Service) Prepare(ctx context.Context, req types.InvestmentRequest) (pending *PendingOperation, err error) {
	defer func(start time.Time) { s.record("prepare", start, err) }(time.Now())

	p, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	pending, _, err = s.prepareInvestment(ctx, req.ChainID, p, aa.StaticSigner{Dummy: p.dummy})
	if err != nil {
		return nil, err
	}
	if err := s.park(ctx, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *Service) prepareInvestment(
	ctx context.Context,
	chainID uint64,
	p params,
	signer aa.Signer,
) (*PendingOperation, *aa.UserOperation, error) {
	n, err := s.network(chainID)
	if err != nil {
		return nil, nil, err
	}

	decimals, err := chain.Decimals(ctx, n.Backend, p.source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source token decimals: %w", err)
	}
	amount, err := chain.ParseUnits(p.amountInput, decimals)
	if err != nil {
		return nil, nil, invalid("amount", "%v", err)
	}
	if amount.Sign() <= 0 {
		return nil, nil, invalid("amount", "amount must be positive")
	}

	existing, _, err := n.Registry.Jobs(ctx, p.account)
	if err != nil {
		return nil, nil, err
	}
	jobIndex := len(existing)

	details, err := s.scheduler.Details(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get scheduler details: %w", err)
	}
	if !common.IsHexAddress(details.Address) {
		return nil, nil, fmt.Errorf("scheduler returned invalid session key %q", details.Address)
	}

	sessionUntil := p.end
	if floor := uint64(s.now().Add(sessionKeyMinLifetime).Unix()); sessionUntil < floor {
		sessionUntil = floor
	}
	sessionPlan, err := n.Planner.BuildSessionKey(ctx, p.account, common.HexToAddress(details.Address), sessionUntil)
	if err != nil {
		return nil, nil, err
	}

	inv := types.Investment{
		SourceToken:       p.source,
		TargetToken:       p.target,
		Vault:             p.vault,
		Account:           p.account,
		ValidAfter:        p.start,
		ValidUntil:        p.end,
		PerExecutionLimit: amount,
		RefreshInterval:   p.interval,
	}
	jobPlan, err := n.Planner.BuildDCAJob(ctx, inv)
	if err != nil {
		return nil, nil, err
	}
	composed := plan.Compose(sessionPlan, jobPlan)

	execCall, err := n.Registry.BuildExecuteJob(jobIndex)
	if err != nil {
		return nil, nil, err
	}
	schedule := &types.ScheduleRequest{
		ID: types.NewJobID(n.Deployment.ChainIDString(), p.account, jobIndex, p.start, p.end, p.interval),
		Trigger: types.Trigger{
			StartTime: int64(p.start),
			EndTime:   int64(p.end),
			Interval:  int64(p.interval),
		},
		Data: types.JobData{
			Call: types.TriggerCall{
				To:    execCall.Target.Hex(),
				Value: execCall.Value.Int64(),
				Data:  execCall.Data,
			},
			ChainID: n.Deployment.ChainIDString(),
			Account: p.account.Hex(),
		},
	}

	pending, op, err := s.build(ctx, n, OperationInvestment, p.account, composed, signer)
	if err != nil {
		return nil, nil, err
	}
	pending.JobIndex = &jobIndex
	pending.Schedule = schedule

	s.logger.WithFields(logrus.Fields{
		"operation": pending.ID,
		"account":   p.account.Hex(),
		"chain_id":  chainID,
		"job_index": jobIndex,
		"installs":  composed.Count(types.CallInstallModule),
	}).Info("investment composed")
	return pending, op, nil
}

func (s *Service) build(
	ctx context.Context,
	n *Network,
	kind OperationKind,
	account common.Address,
	p types.TransactionPlan,
	signer aa.Signer,
) (*PendingOperation, *aa.UserOperation, error) {
	op, err := n.Operator.Build(ctx, account, n.Deployment.WebAuthnValidator, p.Raw(), signer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build user operation: %w", err)
	}
	hash, err := n.Operator.Hash(op)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash user operation: %w", err)
	}
	return &PendingOperation{
		ID:            uuid.New(),
		Kind:          kind,
		ChainID:       n.Deployment.ChainID,
		Account:       account,
		UserOperation: op.RPC(),
		Hash:          hash,
		Plan:          p,
		ExpiresAt:     s.now().Add(s.pendingTTL),
	}, op, nil
}

func (s *Service) park(ctx context.Context, pending *PendingOperation) error {
	if err := storage.SetJSON(ctx, s.store, pendingKey(pending.ID), pending, s.pendingTTL); err != nil {
		return fmt.Errorf("failed to store pending operation: %w", err)
	}
	return nil
}

// Pending returns a parked operation without consuming it.
func (s *Service) Pending(ctx context.Context, id uuid.UUID) (*PendingOperation, error) {
	var pending PendingOperation
	err := storage.GetJSON(ctx, s.store, pendingKey(id), &pending)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// Complete submits a prepared operation with the passkey signature. A pending
// operation is consumed by the first attempt whatever its outcome; a failed
// submission has to be prepared again.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, signature []byte) (res *Result, err error) {
	defer func(start time.Time) { s.record("complete", start, err) }(time.Now())

	if len(signature) == 0 {
		return nil, invalid("signature", "signature is required")
	}
	raw, err := s.store.GetDel(ctx, pendingKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending operation: %w", err)
	}
	var pending PendingOperation
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending operation: %w", err)
	}

	n, err := s.network(pending.ChainID)
	if err != nil {
		return nil, err
	}
	if pending.Kind == OperationCancel {
		return s.completeCancel(ctx, n, &pending, signature)
	}
	op := aa.FromRPC(pending.UserOperation)
	if err := n.Operator.Sign(ctx, op, aa.StaticSigner{Signature: signature}); err != nil {
		return nil, err
	}
	return s.submit(ctx, n, &pending, op)
}

// Create runs the whole flow with an in-process signer.
func (s *Service) Create(ctx context.Context, req types.InvestmentRequest, signer aa.Signer) (res *Result, err error) {
	defer func(start time.Time) { s.record("create", start, err) }(time.Now())

	p, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	pending, op, err := s.prepareInvestment(ctx, req.ChainID, p, signer)
	if err != nil {
		return nil, err
	}
	n, err := s.network(req.ChainID)
	if err != nil {
		return nil, err
	}
	if err := n.Operator.Sign(ctx, op, signer); err != nil {
		return nil, err
	}
	return s.submit(ctx, n, pending, op)
}

func (s *Service) submit(ctx context.Context, n *Network, pending *PendingOperation, op *aa.UserOperation) (*Result, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"operation": pending.ID,
		"account":   pending.Account.Hex(),
		"hash":      pending.Hash.Hex(),
	})

	receipt, err := n.Operator.SubmitAndWait(ctx, op)
	if err != nil {
		logger.Errorf("user operation failed: %v", err)
		hash, _ := aa.RecoverHash(err)
		return nil, &SubmissionError{Hash: hash, Err: err}
	}
	res := &Result{
		OperationID: pending.ID,
		UserOpHash:  receipt.UserOpHash.Hex(),
		TxHash:      receipt.Receipt.TransactionHash.Hex(),
		Status:      "confirmed",
	}
	logger.WithField("tx", res.TxHash).Info("user operation included")

	if pending.Schedule == nil {
		return res, nil
	}
	jobID := pending.Schedule.ID
	res.JobID = &jobID

	if _, err := s.scheduler.Schedule(ctx, *pending.Schedule); err != nil {
		logger.WithField("job_id", jobID).Errorf("failed to register trigger: %v", err)
		pErr := &PartialFailureError{
			UserOpHash: receipt.UserOpHash,
			TxHash:     receipt.Receipt.TransactionHash,
			JobID:      jobID,
			Err:        err,
		}
		pErr.RetryTaskID = s.enqueueScheduleRetry(ctx, *pending.Schedule)
		return res, pErr
	}
	res.Status = string(types.JobActive)
	return res, nil
}

func (s *Service) enqueueScheduleRetry(ctx context.Context, req types.ScheduleRequest) string {
	if s.queue == nil {
		return ""
	}
	buf, err := json.Marshal(req)
	if err != nil {
		s.logger.Errorf("failed to marshal schedule retry: %v", err)
		return ""
	}
	info, err := s.queue.EnqueueContext(ctx,
		asynq.NewTask(tasks.TypeScheduleRetry, buf),
		asynq.MaxRetry(scheduleRetryMax),
		asynq.Timeout(time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Queue(tasks.QUEUE_NAME),
	)
	if err != nil {
		s.logger.WithField("job_id", req.ID).Errorf("failed to enqueue schedule retry: %v", err)
		return ""
	}
	return info.ID
}

// PrepareWithdraw parks a user operation redeeming every vault share of the
// account.
func (s *Service) PrepareWithdraw(ctx context.Context, req types.WithdrawRequest) (pending *PendingOperation, err error) {
	defer func(start time.Time) { s.record("withdraw", start, err) }(time.Now())

	n, err := s.network(req.ChainID)
	if err != nil {
		return nil, err
	}
	account, err := address("account", req.Account)
	if err != nil {
		return nil, err
	}
	vault, err := address("vault", req.Vault)
	if err != nil {
		return nil, err
	}
	dummy, err := dummySignature(req.DummySignature)
	if err != nil {
		return nil, err
	}

	call, err := chain.BuildVaultRedeem(ctx, n.Backend, account, vault)
	if errors.Is(err, chain.ErrNoShares) {
		return nil, invalid("vault", "%v", err)
	}
	if err != nil {
		return nil, err
	}
	var p types.TransactionPlan
	p.Add(types.CallVaultRedeem, call)

	pending, _, err = s.build(ctx, n, OperationWithdraw, account, p, aa.StaticSigner{Dummy: dummy})
	if err != nil {
		return nil, err
	}
	if err := s.park(ctx, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *Service) VaultBalance(ctx context.Context, chainID uint64, account, vault common.Address) (types.VaultBalance, error) {
	n, err := s.network(chainID)
	if err != nil {
		return types.VaultBalance{}, err
	}
	shares, err := chain.VaultShares(ctx, n.Backend, vault, account)
	if err != nil {
		return types.VaultBalance{}, err
	}
	assets := big.NewInt(0)
	if shares.Sign() > 0 {
		if assets, err = chain.VaultAssets(ctx, n.Backend, vault, account); err != nil {
			return types.VaultBalance{}, err
		}
	}
	asset, err := chain.VaultAsset(ctx, n.Backend, vault)
	if err != nil {
		return types.VaultBalance{}, err
	}
	decimals, err := chain.Decimals(ctx, n.Backend, asset)
	if err != nil {
		return types.VaultBalance{}, err
	}
	return types.VaultBalance{
		Vault:     vault,
		Asset:     asset,
		Shares:    shares.String(),
		Assets:    assets.String(),
		Formatted: chain.FormatUnits(assets, decimals),
	}, nil
}
