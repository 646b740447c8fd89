package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultTimeout = 30 * time.Second

// Backend is the subset of ethclient.Client the wallet reads through.
type Backend interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type Chain struct {
	Deployment Deployment
	Backend    Backend
}

type Chains map[uint64]*Chain

// Dial opens one RPC connection per deployment.
func Dial(c context.Context, deployments Deployments) (Chains, error) {
	chains := make(Chains, len(deployments))
	for id, d := range deployments {
		ctx, cancel := context.WithTimeout(c, defaultTimeout)
		cl, err := ethclient.DialContext(ctx, d.RPCURL)
		cancel()
		if err != nil {
			chains.Close()
			return nil, fmt.Errorf("ethclient.DialContext(chain=%d): %w", id, err)
		}
		chains[id] = &Chain{
			Deployment: d,
			Backend:    cl,
		}
	}
	return chains, nil
}

func (cs Chains) Get(chainID uint64) (*Chain, error) {
	ch, ok := cs[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d is not configured", chainID)
	}
	return ch, nil
}

func (cs Chains) Close() {
	for _, ch := range cs {
		if cl, ok := ch.Backend.(*ethclient.Client); ok {
			cl.Close()
		}
	}
}
