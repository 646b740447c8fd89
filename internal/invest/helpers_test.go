package invest

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/chain/chaintest"
	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/internal/jobs"
	"github.com/brewit-money/wallet/internal/modules"
	"github.com/brewit-money/wallet/internal/registry"
	"github.com/brewit-money/wallet/internal/storage"
	"github.com/brewit-money/wallet/types"
)

var (
	now = time.Unix(1_750_000_000, 0)

	account    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc       = common.HexToAddress("0x2222222222222222222222222222222222222222")
	weth       = common.HexToAddress("0x3333333333333333333333333333333333333333")
	vault      = common.HexToAddress("0x4444444444444444444444444444444444444444")
	sessionKey = common.HexToAddress("0x5555555555555555555555555555555555555555")

	deployment = chain.Deployment{
		ChainID:           8453,
		EntryPoint:        common.HexToAddress(chain.EntryPointV07),
		WebAuthnValidator: common.HexToAddress("0xD990393C670dCcE8b4d8F858FB98c9912dBFAa06"),
		AutoDCAExecutor:   common.HexToAddress("0xD7945bbAB1A41a1C3736ED5b2411beA809a2ee2b"),
		SessionValidator:  common.HexToAddress("0x8D4Bd3f21CfE07FeDe4320F1DA44F5d5d9b9952C"),
	}
)

type fakeChecker struct {
	installed bool
}

func (f fakeChecker) IsInstalled(context.Context, common.Address, common.Address, modules.Type) (bool, error) {
	return f.installed, nil
}

type fakeOperator struct {
	mu        sync.Mutex
	validator common.Address
	built     [][]types.Call
	submitted *aa.UserOperation
	receipt   *aa.Receipt
	err       error
}

func (f *fakeOperator) Build(_ context.Context, acct, validator common.Address, calls []types.Call, signer aa.Signer) (*aa.UserOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validator = validator
	f.built = append(f.built, calls)
	callData, err := aa.EncodeExecute(calls)
	if err != nil {
		return nil, err
	}
	return &aa.UserOperation{
		Sender:               acct,
		Nonce:                big.NewInt(7),
		CallData:             callData,
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(200_000),
		PreVerificationGas:   big.NewInt(50_000),
		MaxFeePerGas:         big.NewInt(5_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		Signature:            signer.DummySignature(),
	}, nil
}

func (f *fakeOperator) Hash(op *aa.UserOperation) (common.Hash, error) {
	return op.Hash(deployment.EntryPoint, new(big.Int).SetUint64(deployment.ChainID))
}

func (f *fakeOperator) Sign(ctx context.Context, op *aa.UserOperation, signer aa.Signer) error {
	hash, err := f.Hash(op)
	if err != nil {
		return err
	}
	sig, err := signer.SignUserOperationHash(ctx, hash)
	if err != nil {
		return err
	}
	op.Signature = sig
	return nil
}

func (f *fakeOperator) SubmitAndWait(_ context.Context, op *aa.UserOperation) (*aa.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = op
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	rec := &aa.Receipt{UserOpHash: common.HexToHash("0xaa"), Sender: op.Sender, Success: true}
	rec.Receipt.TransactionHash = common.HexToHash("0xbb")
	return rec, nil
}

type fakeScheduler struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]types.Job
	scheduled   []types.ScheduleRequest
	cancelled   []uuid.UUID
	scheduleErr error
	getErr      error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[uuid.UUID]types.Job)}
}

func (f *fakeScheduler) Details(context.Context) (types.SchedulerDetails, error) {
	return types.SchedulerDetails{Address: sessionKey.Hex()}, nil
}

func (f *fakeScheduler) Schedule(_ context.Context, req types.ScheduleRequest) (types.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return types.Job{}, f.scheduleErr
	}
	f.scheduled = append(f.scheduled, req)
	job := types.Job{ID: req.ID, Status: types.JobActive, Account: req.Data.Account}
	f.jobs[req.ID] = job
	return job, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	job.Status = types.JobCancelled
	f.jobs[id] = job
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeScheduler) Get(_ context.Context, id uuid.UUID) (types.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return types.Job{}, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return types.Job{}, jobs.ErrNotFound
	}
	return job, nil
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

type fixture struct {
	backend   *chaintest.Backend
	operator  *fakeOperator
	scheduler *fakeScheduler
	queue     *fakeQueue
	store     *storage.MemoryStorage
	service   *Service
}

func newFixture(t *testing.T, existing ...registry.JobData) *fixture {
	t.Helper()
	backend := chaintest.NewBackend()
	backend.Returns(usdc, contracts.ERC20, "decimals", uint8(6))
	backend.Returns(weth, contracts.ERC20, "decimals", uint8(18))
	execs := make([]registry.JobExecution, len(existing))
	for i := range execs {
		execs[i] = registry.JobExecution{
			LastUsed:         big.NewInt(0),
			TotalExecutions:  big.NewInt(int64(i)),
			TotalTargetToken: big.NewInt(0),
		}
	}
	if existing == nil {
		existing = []registry.JobData{}
	}
	backend.Returns(deployment.AutoDCAExecutor, contracts.AutoDCAExecutor, "getJobData", existing, execs)

	f := &fixture{
		backend:   backend,
		operator:  &fakeOperator{},
		scheduler: newFakeScheduler(),
		queue:     &fakeQueue{},
		store:     storage.NewMemoryStorage(),
	}
	n := NewNetwork(&chain.Chain{Deployment: deployment, Backend: backend}, f.operator, fakeChecker{}, logrus.New())
	f.service = NewService(
		[]*Network{n},
		f.scheduler,
		f.store,
		logrus.New(),
		WithQueue(f.queue),
		WithClock(func() time.Time { return now }),
	)
	return f
}

func jobData(validAfter, validUntil, interval int64) registry.JobData {
	return registry.JobData{
		Token:           usdc,
		TargetToken:     weth,
		Account:         account,
		ValidAfter:      big.NewInt(validAfter),
		ValidUntil:      big.NewInt(validUntil),
		LimitAmount:     big.NewInt(1_000_000),
		RefreshInterval: big.NewInt(interval),
	}
}

func request() types.InvestmentRequest {
	return types.InvestmentRequest{
		ChainID:       deployment.ChainID,
		Account:       account.Hex(),
		Amount:        "10.5",
		SourceToken:   usdc.Hex(),
		TargetToken:   weth.Hex(),
		StartTime:     now.Unix(),
		EndTime:       now.Add(7 * 24 * time.Hour).Unix(),
		Frequency:     1,
		FrequencyUnit: types.FrequencyDays,
	}
}

var errBoom = errors.New("boom")

func abiConvert(t *testing.T, in interface{}, out interface{}) {
	t.Helper()
	require.NotPanics(t, func() {
		abi.ConvertType(in, out)
	})
}
