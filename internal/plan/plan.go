// Package plan composes the call batches that set up a DCA job on a smart
// account.
package plan

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/internal/modules"
	"github.com/brewit-money/wallet/internal/registry"
	"github.com/brewit-money/wallet/types"
)

// SessionKeyData is the ABI tuple enableSessionKey takes.
type SessionKeyData struct {
	Target       common.Address
	FuncSelector [4]byte
	ValidAfter   *big.Int
	ValidUntil   *big.Int
	Active       bool
}

type Builder struct {
	deployment chain.Deployment
	checker    modules.Checker
	registry   *registry.Registry
	logger     *logrus.Logger
}

func NewBuilder(
	deployment chain.Deployment,
	checker modules.Checker,
	reg *registry.Registry,
	logger *logrus.Logger,
) *Builder {
	return &Builder{
		deployment: deployment,
		checker:    checker,
		registry:   reg,
		logger:     logger.WithField("pkg", "plan.Builder").Logger,
	}
}

func (b *Builder) installIfNeeded(
	ctx context.Context,
	p *types.TransactionPlan,
	account, module common.Address,
	typ modules.Type,
) error {
	installed, err := b.checker.IsInstalled(ctx, account, module, typ)
	if err != nil {
		return fmt.Errorf("failed to check %s module %s: %w", typ, module.Hex(), err)
	}
	if installed {
		return nil
	}

	b.logger.WithFields(logrus.Fields{
		"account": account.Hex(),
		"module":  module.Hex(),
		"type":    typ,
	}).Info("module not installed, adding install call")

	call, err := modules.BuildInstall(account, module, typ, nil)
	if err != nil {
		return err
	}
	p.Add(types.CallInstallModule, call)
	return nil
}

// BuildSessionKey lets sessionKey call executeJob on the executor from account
// until validUntil.
func (b *Builder) BuildSessionKey(
	ctx context.Context,
	account, sessionKey common.Address,
	validUntil uint64,
) (types.TransactionPlan, error) {
	var p types.TransactionPlan
	err := b.installIfNeeded(ctx, &p, account, b.deployment.SessionValidator, modules.TypeValidator)
	if err != nil {
		return types.TransactionPlan{}, err
	}

	data, err := contracts.SessionValidator.Pack("enableSessionKey", sessionKey, SessionKeyData{
		Target:       b.deployment.AutoDCAExecutor,
		FuncSelector: registry.ExecuteJobSelector(),
		ValidAfter:   big.NewInt(0),
		ValidUntil:   new(big.Int).SetUint64(validUntil),
		Active:       true,
	})
	if err != nil {
		return types.TransactionPlan{}, fmt.Errorf("failed to pack enableSessionKey: %w", err)
	}
	p.Add(types.CallEnableSession, types.Call{
		Target: b.deployment.SessionValidator,
		Data:   data,
	})
	return p, nil
}

// BuildDCAJob installs the executor if needed and creates the job.
func (b *Builder) BuildDCAJob(ctx context.Context, inv types.Investment) (types.TransactionPlan, error) {
	var p types.TransactionPlan
	err := b.installIfNeeded(ctx, &p, inv.Account, b.deployment.AutoDCAExecutor, modules.TypeExecutor)
	if err != nil {
		return types.TransactionPlan{}, err
	}

	call, err := b.registry.BuildCreateJob(inv)
	if err != nil {
		return types.TransactionPlan{}, err
	}
	p.Add(types.CallCreateJob, call)
	return p, nil
}

func rank(kind types.CallKind) int {
	switch kind {
	case types.CallInstallModule:
		return 0
	case types.CallEnableSession:
		return 1
	case types.CallCreateJob:
		return 2
	default:
		return 3
	}
}

// Compose merges plans into one batch: installs, then session setup, then job
// creation. Identical install calls are kept once.
func Compose(parts ...types.TransactionPlan) types.TransactionPlan {
	var out types.TransactionPlan
	seen := make(map[string]bool)
	for _, part := range parts {
		for _, c := range part.Calls {
			if c.Kind == types.CallInstallModule {
				k := c.Target.Hex() + common.Bytes2Hex(c.Data)
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			out.Calls = append(out.Calls, c)
		}
	}
	sort.SliceStable(out.Calls, func(i, j int) bool {
		return rank(out.Calls[i].Kind) < rank(out.Calls[j].Kind)
	})
	return out
}
