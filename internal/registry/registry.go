// Package registry reads and writes DCA jobs held by the AutoDCA executor.
package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/types"
)

// JobData is the ABI tuple of a registry job.
type JobData struct {
	Vault           common.Address
	Token           common.Address
	TargetToken     common.Address
	Account         common.Address
	ValidAfter      *big.Int
	ValidUntil      *big.Int
	LimitAmount     *big.Int
	RefreshInterval *big.Int
}

// JobExecution is the ABI tuple of per-job execution counters.
type JobExecution struct {
	Active           bool
	LastUsed         *big.Int
	TotalExecutions  *big.Int
	TotalTargetToken *big.Int
}

type Registry struct {
	caller   ethereum.ContractCaller
	executor common.Address
}

func New(caller ethereum.ContractCaller, executor common.Address) *Registry {
	return &Registry{
		caller:   caller,
		executor: executor,
	}
}

func (r *Registry) Address() common.Address {
	return r.executor
}

// Jobs returns the account's jobs and their stats, index-aligned. The slice
// index is the job ID executeJob expects.
func (r *Registry) Jobs(ctx context.Context, account common.Address) ([]types.Investment, []types.JobExecutionStats, error) {
	res, err := chain.Call(ctx, r.caller, r.executor, contracts.AutoDCAExecutor, "getJobData", account)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read jobs: %w", err)
	}
	if len(res) != 2 {
		return nil, nil, fmt.Errorf("getJobData: expected 2 outputs, got %d", len(res))
	}

	var jobs []JobData
	if err := convert(res[0], &jobs); err != nil {
		return nil, nil, fmt.Errorf("getJobData jobs: %w", err)
	}
	var execs []JobExecution
	if err := convert(res[1], &execs); err != nil {
		return nil, nil, fmt.Errorf("getJobData executions: %w", err)
	}

	investments := make([]types.Investment, 0, len(jobs))
	for _, j := range jobs {
		investments = append(investments, types.Investment{
			SourceToken:       j.Token,
			TargetToken:       j.TargetToken,
			Vault:             j.Vault,
			Account:           j.Account,
			ValidAfter:        uint64OrZero(j.ValidAfter),
			ValidUntil:        uint64OrZero(j.ValidUntil),
			PerExecutionLimit: j.LimitAmount,
			RefreshInterval:   uint64OrZero(j.RefreshInterval),
		})
	}

	stats := make([]types.JobExecutionStats, len(investments))
	for i := range stats {
		if i >= len(execs) {
			stats[i] = types.JobExecutionStats{TotalTargetTokenReceived: big.NewInt(0)}
			continue
		}
		e := execs[i]
		stats[i] = types.JobExecutionStats{
			Active:                   e.Active,
			LastExecutedAt:           uint64OrZero(e.LastUsed),
			TotalExecutions:          uint64OrZero(e.TotalExecutions),
			TotalTargetTokenReceived: e.TotalTargetToken,
		}
	}

	return investments, stats, nil
}

func (r *Registry) BuildCreateJob(inv types.Investment) (types.Call, error) {
	if inv.PerExecutionLimit == nil || inv.PerExecutionLimit.Sign() <= 0 {
		return types.Call{}, fmt.Errorf("per execution limit must be positive")
	}
	data, err := contracts.AutoDCAExecutor.Pack("createJob", JobData{
		Vault:           inv.Vault,
		Token:           inv.SourceToken,
		TargetToken:     inv.TargetToken,
		Account:         inv.Account,
		ValidAfter:      new(big.Int).SetUint64(inv.ValidAfter),
		ValidUntil:      new(big.Int).SetUint64(inv.ValidUntil),
		LimitAmount:     inv.PerExecutionLimit,
		RefreshInterval: new(big.Int).SetUint64(inv.RefreshInterval),
	})
	if err != nil {
		return types.Call{}, fmt.Errorf("failed to pack createJob: %w", err)
	}
	return types.Call{
		Target: r.executor,
		Value:  big.NewInt(0),
		Data:   data,
	}, nil
}

func (r *Registry) BuildExecuteJob(jobIndex int) (types.Call, error) {
	if jobIndex < 0 {
		return types.Call{}, fmt.Errorf("invalid job index %d", jobIndex)
	}
	data, err := contracts.AutoDCAExecutor.Pack("executeJob", big.NewInt(int64(jobIndex)))
	if err != nil {
		return types.Call{}, fmt.Errorf("failed to pack executeJob: %w", err)
	}
	return types.Call{
		Target: r.executor,
		Value:  big.NewInt(0),
		Data:   data,
	}, nil
}

func ExecuteJobSelector() [4]byte {
	sel, err := contracts.Selector(contracts.AutoDCAExecutor, "executeJob")
	if err != nil {
		panic(err)
	}
	return sel
}

func convert(in interface{}, out interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("abi conversion failed: %v", r)
		}
	}()
	abi.ConvertType(in, out)
	return nil
}

func uint64OrZero(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
