package invest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/modules"
	"github.com/brewit-money/wallet/internal/plan"
	"github.com/brewit-money/wallet/internal/registry"
	"github.com/brewit-money/wallet/internal/uniswap"
	"github.com/brewit-money/wallet/types"
)

// Operator is the part of aa.Client the orchestrator drives.
type Operator interface {
	Build(ctx context.Context, account, validator common.Address, calls []types.Call, signer aa.Signer) (*aa.UserOperation, error)
	Hash(op *aa.UserOperation) (common.Hash, error)
	Sign(ctx context.Context, op *aa.UserOperation, signer aa.Signer) error
	SubmitAndWait(ctx context.Context, op *aa.UserOperation) (*aa.Receipt, error)
}

// Network bundles everything the orchestrator needs on one chain.
type Network struct {
	Deployment chain.Deployment
	Backend    chain.Backend
	Operator   Operator
	Registry   *registry.Registry
	Planner    *plan.Builder
	Quoter     *uniswap.Quoter
}

func NewNetwork(ch *chain.Chain, op Operator, checker modules.Checker, logger *logrus.Logger) *Network {
	reg := registry.New(ch.Backend, ch.Deployment.AutoDCAExecutor)
	n := &Network{
		Deployment: ch.Deployment,
		Backend:    ch.Backend,
		Operator:   op,
		Registry:   reg,
		Planner:    plan.NewBuilder(ch.Deployment, checker, reg, logger),
	}
	if ch.Deployment.HasQuoter() {
		n.Quoter = uniswap.NewQuoter(ch.Backend, ch.Deployment.UniswapQuoter)
	}
	return n
}

// DialNetworks connects a bundler client to every chain.
func DialNetworks(ctx context.Context, chains chain.Chains, logger *logrus.Logger, opts ...aa.Option) ([]*Network, error) {
	networks := make([]*Network, 0, len(chains))
	for id, ch := range chains {
		client, err := aa.Dial(ctx, ch, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", id, err)
		}
		networks = append(networks, NewNetwork(ch, client, modules.NewInstaller(ch.Backend, logger), logger))
	}
	return networks, nil
}
