// Package uniswap prices swaps with the Uniswap V3 QuoterV2 lens contract.
package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/contracts"
)

type FeeAmount uint32

const (
	FeeLowest FeeAmount = 100
	FeeLow    FeeAmount = 500
	FeeMedium FeeAmount = 3000
	FeeHigh   FeeAmount = 10000
)

func (f FeeAmount) Valid() bool {
	switch f {
	case FeeLowest, FeeLow, FeeMedium, FeeHigh:
		return true
	}
	return false
}

type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

type Quote struct {
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	AmountOutRaw string `json:"amount_out_raw"`
	Fee          uint32 `json:"fee"`
	GasEstimate  string `json:"gas_estimate"`
}

type Quoter struct {
	caller  ethereum.ContractCaller
	address common.Address
}

func NewQuoter(caller ethereum.ContractCaller, address common.Address) *Quoter {
	return &Quoter{
		caller:  caller,
		address: address,
	}
}

// QuoteExactInputSingle quotes amountIn, a human-readable amount of tokenIn,
// against the single pool of the given fee tier.
func (q *Quoter) QuoteExactInputSingle(
	ctx context.Context,
	tokenIn, tokenOut common.Address,
	amountIn string,
	fee FeeAmount,
) (Quote, error) {
	if fee == 0 {
		fee = FeeMedium
	}
	if !fee.Valid() {
		return Quote{}, fmt.Errorf("unsupported fee tier %d", fee)
	}
	if chain.IsNative(tokenIn) || chain.IsNative(tokenOut) {
		return Quote{}, fmt.Errorf("pools are quoted by ERC-20 tokens only")
	}
	if tokenIn == tokenOut {
		return Quote{}, fmt.Errorf("tokenIn and tokenOut must differ")
	}

	inDecimals, err := chain.Decimals(ctx, q.caller, tokenIn)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to read tokenIn decimals: %w", err)
	}
	outDecimals, err := chain.Decimals(ctx, q.caller, tokenOut)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to read tokenOut decimals: %w", err)
	}

	raw, err := chain.ParseUnits(amountIn, inDecimals)
	if err != nil {
		return Quote{}, err
	}
	if raw.Sign() <= 0 {
		return Quote{}, fmt.Errorf("amount must be positive")
	}

	res, err := chain.Call(ctx, q.caller, q.address, contracts.QuoterV2, "quoteExactInputSingle", quoteParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          raw,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return Quote{}, fmt.Errorf("failed to quote: %w", err)
	}
	if len(res) != 4 {
		return Quote{}, fmt.Errorf("quoteExactInputSingle: expected 4 outputs, got %d", len(res))
	}
	out, ok := res[0].(*big.Int)
	if !ok {
		return Quote{}, fmt.Errorf("unexpected amountOut type %T", res[0])
	}
	gas, _ := res[3].(*big.Int)

	q2 := Quote{
		AmountIn:     amountIn,
		AmountOut:    chain.FormatUnits(out, outDecimals),
		AmountOutRaw: out.String(),
		Fee:          uint32(fee),
	}
	if gas != nil {
		q2.GasEstimate = gas.String()
	}
	return q2, nil
}
