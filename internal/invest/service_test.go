package invest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/internal/jobs"
	"github.com/brewit-money/wallet/internal/registry"
	"github.com/brewit-money/wallet/internal/tasks"
	"github.com/brewit-money/wallet/types"
)

func TestPrepare_ComposesAndParks(t *testing.T) {
	f := newFixture(t, jobData(1, 2, 60))
	req := request()

	pending, err := f.service.Prepare(context.Background(), req)
	require.NoError(t, err)

	kinds := make([]types.CallKind, 0, len(pending.Plan.Calls))
	for _, c := range pending.Plan.Calls {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []types.CallKind{
		types.CallInstallModule,
		types.CallInstallModule,
		types.CallEnableSession,
		types.CallCreateJob,
	}, kinds)
	assert.Equal(t, deployment.WebAuthnValidator, f.operator.validator)

	require.NotNil(t, pending.JobIndex)
	assert.Equal(t, 1, *pending.JobIndex)
	require.NotNil(t, pending.Schedule)
	assert.Equal(t, types.NewJobID("8453", account, 1, uint64(req.StartTime), uint64(req.EndTime), 86400), pending.Schedule.ID)
	assert.Equal(t, int64(86400), pending.Schedule.Trigger.Interval)
	assert.Equal(t, deployment.AutoDCAExecutor.Hex(), pending.Schedule.Data.Call.To)

	args, err := contracts.AutoDCAExecutor.Methods["executeJob"].Inputs.Unpack(pending.Schedule.Data.Call.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(1), args[0].(*big.Int).Int64())

	create := pending.Plan.Calls[3]
	args, err = contracts.AutoDCAExecutor.Methods["createJob"].Inputs.Unpack(create.Data[4:])
	require.NoError(t, err)
	var job registry.JobData
	abiConvert(t, args[0], &job)
	assert.Equal(t, int64(10_500_000), job.LimitAmount.Int64())
	assert.Equal(t, uint64(req.StartTime), job.ValidAfter.Uint64())

	stored, err := f.service.Pending(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.Hash, stored.Hash)
}

func TestPrepare_SessionKeyOutlivesShortPlans(t *testing.T) {
	f := newFixture(t)
	req := request()
	req.EndTime = now.Add(time.Hour).Unix()
	req.FrequencyUnit = types.FrequencyMinutes

	pending, err := f.service.Prepare(context.Background(), req)
	require.NoError(t, err)

	var enable types.PlannedCall
	for _, c := range pending.Plan.Calls {
		if c.Kind == types.CallEnableSession {
			enable = c
		}
	}
	args, err := contracts.SessionValidator.Methods["enableSessionKey"].Inputs.Unpack(enable.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, sessionKey, args[0].(common.Address))
	var data struct {
		Target       common.Address
		FuncSelector [4]byte
		ValidAfter   *big.Int
		ValidUntil   *big.Int
		Active       bool
	}
	abiConvert(t, args[1], &data)
	assert.Equal(t, uint64(now.Add(24*time.Hour).Unix()), data.ValidUntil.Uint64())
}

func TestPrepare_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *types.InvestmentRequest)
		field  string
	}{
		{"empty amount", func(r *types.InvestmentRequest) { r.Amount = " " }, "amount"},
		{"zero amount", func(r *types.InvestmentRequest) { r.Amount = "0" }, "amount"},
		{"bad amount", func(r *types.InvestmentRequest) { r.Amount = "ten" }, "amount"},
		{"exponent amount", func(r *types.InvestmentRequest) { r.Amount = "1e50000000" }, "amount"},
		{"same tokens", func(r *types.InvestmentRequest) { r.TargetToken = r.SourceToken }, "target_token"},
		{"bad vault", func(r *types.InvestmentRequest) { r.Vault = "0x12" }, "vault"},
		{"end before start", func(r *types.InvestmentRequest) { r.EndTime = r.StartTime - 1 }, "end_time"},
		{"end in past", func(r *types.InvestmentRequest) {
			r.StartTime = now.Add(-2 * time.Hour).Unix()
			r.EndTime = now.Add(-time.Hour).Unix()
		}, "end_time"},
		{"bad unit", func(r *types.InvestmentRequest) { r.FrequencyUnit = "weeks" }, "frequency"},
		{"zero frequency", func(r *types.InvestmentRequest) { r.Frequency = 0 }, "frequency"},
		{"overflowing frequency", func(r *types.InvestmentRequest) {
			r.Frequency = 1 << 60
			r.FrequencyUnit = types.FrequencyDays
		}, "frequency"},
		{"unknown chain", func(r *types.InvestmentRequest) { r.ChainID = 1 }, "chain_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := request()
			tt.mutate(&req)

			_, err := f.service.Prepare(context.Background(), req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, f.operator.built)
		})
	}
}

func TestComplete_RegistersTrigger(t *testing.T) {
	f := newFixture(t)
	pending, err := f.service.Prepare(context.Background(), request())
	require.NoError(t, err)

	res, err := f.service.Complete(context.Background(), pending.ID, []byte{0x01, 0x02})
	require.NoError(t, err)

	assert.Equal(t, string(types.JobActive), res.Status)
	require.NotNil(t, res.JobID)
	assert.Equal(t, pending.Schedule.ID, *res.JobID)
	require.Len(t, f.scheduler.scheduled, 1)
	assert.Equal(t, []byte{0x01, 0x02}, f.operator.submitted.Signature)

	_, err = f.service.Complete(context.Background(), pending.ID, []byte{0x01})
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestComplete_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.scheduler.scheduleErr = &jobs.StatusError{Code: http.StatusBadGateway, Body: "down"}
	pending, err := f.service.Prepare(context.Background(), request())
	require.NoError(t, err)

	res, err := f.service.Complete(context.Background(), pending.ID, []byte{0x01})
	var pErr *PartialFailureError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, pending.Schedule.ID, pErr.JobID)
	assert.Equal(t, "task-1", pErr.RetryTaskID)
	assert.Equal(t, common.HexToHash("0xbb"), pErr.TxHash)
	require.NotNil(t, res)
	assert.Equal(t, "confirmed", res.Status)

	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, tasks.TypeScheduleRetry, f.queue.tasks[0].Type())
	var queued types.ScheduleRequest
	require.NoError(t, json.Unmarshal(f.queue.tasks[0].Payload(), &queued))
	assert.Equal(t, pending.Schedule.ID, queued.ID)
}

func TestComplete_SubmissionFailure(t *testing.T) {
	f := newFixture(t)
	f.operator.err = errBoom
	pending, err := f.service.Prepare(context.Background(), request())
	require.NoError(t, err)

	_, err = f.service.Complete(context.Background(), pending.ID, []byte{0x01})
	var sErr *SubmissionError
	require.ErrorAs(t, err, &sErr)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.scheduler.scheduled)
	assert.Empty(t, f.queue.tasks)
}

func TestComplete_RequiresSignature(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Complete(context.Background(), uuid.New(), nil)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = f.service.Complete(context.Background(), uuid.New(), []byte{0x01})
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

type keySigner struct{}

func (keySigner) SignUserOperationHash(_ context.Context, hash common.Hash) ([]byte, error) {
	return hash.Bytes(), nil
}

func (keySigner) DummySignature() []byte {
	return []byte{0xff}
}

func TestCreate_SignsInProcess(t *testing.T) {
	f := newFixture(t)

	res, err := f.service.Create(context.Background(), request(), keySigner{})
	require.NoError(t, err)
	require.NotNil(t, res.JobID)
	require.Len(t, f.scheduler.scheduled, 1)

	hash, err := f.operator.Hash(f.operator.submitted)
	require.NoError(t, err)
	assert.Equal(t, hash.Bytes(), f.operator.submitted.Signature)

	n, err := f.store.Count(context.Background(), pendingPrefix)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestList_Partition(t *testing.T) {
	day := int64(86400)
	expired := jobData(now.Unix()-10*day, now.Unix()-day, 3600)
	scheduled := jobData(now.Unix(), now.Unix()+day, 3600)
	unscheduled := jobData(now.Unix(), now.Unix()+2*day, 3600)
	cancelled := jobData(now.Unix(), now.Unix()+3*day, 3600)
	f := newFixture(t, expired, scheduled, unscheduled, cancelled)

	id := func(i int, j registry.JobData) uuid.UUID {
		return types.NewJobID("8453", account, i, j.ValidAfter.Uint64(), j.ValidUntil.Uint64(), j.RefreshInterval.Uint64())
	}
	// the scheduler still reports the expired job as active
	f.scheduler.jobs[id(0, expired)] = types.Job{Status: types.JobActive}
	f.scheduler.jobs[id(1, scheduled)] = types.Job{Status: types.JobActive}
	f.scheduler.jobs[id(3, cancelled)] = types.Job{Status: types.JobCancelled}

	list, err := f.service.List(context.Background(), deployment.ChainID, account)
	require.NoError(t, err)

	assert.Equal(t, 4, list.NextJob)
	require.Len(t, list.History, 1)
	assert.Equal(t, 0, list.History[0].Index)
	assert.Equal(t, types.InvestmentExpired, list.History[0].Status)

	require.Len(t, list.Active, 3)
	assert.Equal(t, types.InvestmentActive, list.Active[0].Status)
	assert.Equal(t, types.InvestmentUnscheduled, list.Active[1].Status)
	assert.Equal(t, types.InvestmentCancelled, list.Active[2].Status)
	assert.Equal(t, uint64(2), list.Active[1].Stats.TotalExecutions)
}

func TestList_SchedulerOutage(t *testing.T) {
	f := newFixture(t, jobData(now.Unix(), now.Unix()+3600, 60))
	f.scheduler.getErr = errBoom

	list, err := f.service.List(context.Background(), deployment.ChainID, account)
	require.NoError(t, err)
	require.Len(t, list.Active, 1)
	assert.Equal(t, types.InvestmentActive, list.Active[0].Status)
}

func acceptSignature(f *fixture, good []byte) {
	f.backend.Handle(account, contracts.ERC7579Account, "isValidSignature", func(args []interface{}) ([]interface{}, error) {
		if bytes.Equal(args[1].([]byte), good) {
			return []interface{}{contracts.ERC1271MagicValue}, nil
		}
		return []interface{}{[4]byte{}}, nil
	})
}

func TestCancel(t *testing.T) {
	j := jobData(now.Unix(), now.Unix()+3600, 60)
	f := newFixture(t, j)
	jobID := types.NewJobID("8453", account, 0, j.ValidAfter.Uint64(), j.ValidUntil.Uint64(), 60)
	f.scheduler.jobs[jobID] = types.Job{ID: jobID, Status: types.JobActive}
	good := []byte{0xca, 0xfe}
	acceptSignature(f, good)

	pending, err := f.service.PrepareCancel(context.Background(), deployment.ChainID, account, 0)
	require.NoError(t, err)
	assert.Equal(t, OperationCancel, pending.Kind)
	require.NotNil(t, pending.JobID)
	assert.Equal(t, jobID, *pending.JobID)
	assert.Equal(t, now.Add(defaultPendingTTL), pending.ExpiresAt)
	assert.NotEqual(t, common.Hash{}, pending.Hash)
	assert.Empty(t, f.scheduler.cancelled)

	res, err := f.service.Complete(context.Background(), pending.ID, good)
	require.NoError(t, err)
	assert.Equal(t, &jobID, res.JobID)
	assert.Equal(t, string(types.JobCancelled), res.Status)
	assert.Equal(t, []uuid.UUID{jobID}, f.scheduler.cancelled)
	assert.Empty(t, f.operator.built)

	_, err = f.service.Complete(context.Background(), pending.ID, good)
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestCancel_RejectedSignature(t *testing.T) {
	j := jobData(now.Unix(), now.Unix()+3600, 60)
	f := newFixture(t, j)
	jobID := types.NewJobID("8453", account, 0, j.ValidAfter.Uint64(), j.ValidUntil.Uint64(), 60)
	f.scheduler.jobs[jobID] = types.Job{ID: jobID, Status: types.JobActive}
	acceptSignature(f, []byte{0xca, 0xfe})

	pending, err := f.service.PrepareCancel(context.Background(), deployment.ChainID, account, 0)
	require.NoError(t, err)
	_, err = f.service.Complete(context.Background(), pending.ID, []byte{0x01})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, f.scheduler.cancelled)
	assert.Equal(t, types.JobActive, f.scheduler.jobs[jobID].Status)

	pending, err = f.service.PrepareCancel(context.Background(), deployment.ChainID, account, 0)
	require.NoError(t, err)
	f.backend.Fails(account, contracts.ERC7579Account, "isValidSignature", errors.New("execution reverted"))
	_, err = f.service.Complete(context.Background(), pending.ID, []byte{0xca, 0xfe})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, f.scheduler.cancelled)
}

func TestCancel_NotScheduled(t *testing.T) {
	f := newFixture(t, jobData(now.Unix(), now.Unix()+3600, 60))
	good := []byte{0xca, 0xfe}
	acceptSignature(f, good)

	pending, err := f.service.PrepareCancel(context.Background(), deployment.ChainID, account, 0)
	require.NoError(t, err)
	_, err = f.service.Complete(context.Background(), pending.ID, good)
	assert.ErrorIs(t, err, ErrNotScheduled)

	_, err = f.service.PrepareCancel(context.Background(), deployment.ChainID, account, 1)
	assert.ErrorIs(t, err, ErrInvestmentNotFound)
}

func TestPrepareWithdraw(t *testing.T) {
	f := newFixture(t)
	f.backend.Returns(vault, contracts.ERC4626, "balanceOf", big.NewInt(500))

	pending, err := f.service.PrepareWithdraw(context.Background(), types.WithdrawRequest{
		ChainID: deployment.ChainID,
		Account: account.Hex(),
		Vault:   vault.Hex(),
	})
	require.NoError(t, err)
	assert.Equal(t, OperationWithdraw, pending.Kind)
	assert.Nil(t, pending.Schedule)
	require.Len(t, pending.Plan.Calls, 1)
	assert.Equal(t, types.CallVaultRedeem, pending.Plan.Calls[0].Kind)

	res, err := f.service.Complete(context.Background(), pending.ID, []byte{0x01})
	require.NoError(t, err)
	assert.Nil(t, res.JobID)
	assert.Equal(t, "confirmed", res.Status)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestPrepareWithdraw_NoShares(t *testing.T) {
	f := newFixture(t)
	f.backend.Returns(vault, contracts.ERC4626, "balanceOf", big.NewInt(0))

	_, err := f.service.PrepareWithdraw(context.Background(), types.WithdrawRequest{
		ChainID: deployment.ChainID,
		Account: account.Hex(),
		Vault:   vault.Hex(),
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "vault", vErr.Field)
	assert.Contains(t, vErr.Message, chain.ErrNoShares.Error())
	assert.Empty(t, f.operator.built)
}

func TestVaultBalance(t *testing.T) {
	f := newFixture(t)
	f.backend.Returns(vault, contracts.ERC4626, "balanceOf", big.NewInt(100))
	f.backend.Returns(vault, contracts.ERC4626, "convertToAssets", big.NewInt(2_500_000))
	f.backend.Returns(vault, contracts.ERC4626, "asset", usdc)

	bal, err := f.service.VaultBalance(context.Background(), deployment.ChainID, account, vault)
	require.NoError(t, err)
	assert.Equal(t, usdc, bal.Asset)
	assert.Equal(t, "100", bal.Shares)
	assert.Equal(t, "2.5", bal.Formatted)
}

func TestQuote_NoQuoter(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Quote(context.Background(), deployment.ChainID, usdc, weth, "1", 0)
	assert.ErrorIs(t, err, ErrQuoterUnavailable)
}

func TestHandleScheduleRetry(t *testing.T) {
	req := types.ScheduleRequest{ID: uuid.New()}
	buf, err := json.Marshal(req)
	require.NoError(t, err)
	task := asynq.NewTask(tasks.TypeScheduleRetry, buf)

	f := newFixture(t)
	require.NoError(t, f.service.HandleScheduleRetry(context.Background(), task))
	require.Len(t, f.scheduler.scheduled, 1)

	f.scheduler.scheduleErr = &jobs.StatusError{Code: http.StatusConflict}
	assert.NoError(t, f.service.HandleScheduleRetry(context.Background(), task))

	f.scheduler.scheduleErr = errBoom
	assert.ErrorIs(t, f.service.HandleScheduleRetry(context.Background(), task), errBoom)

	err = f.service.HandleScheduleRetry(context.Background(), asynq.NewTask(tasks.TypeScheduleRetry, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
