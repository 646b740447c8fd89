package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/types"
)

const NativeDecimals uint8 = 18

var ErrNoShares = errors.New("account holds no vault shares")

func IsNative(token common.Address) bool {
	return token == (common.Address{})
}

func Call(ctx context.Context, caller ethereum.ContractCaller, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{
		To:   &target,
		Data: input,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, target.Hex(), err)
	}

	res, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return res, nil
}

func Decimals(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (uint8, error) {
	if IsNative(token) {
		return NativeDecimals, nil
	}
	res, err := Call(ctx, caller, token, contracts.ERC20, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := res[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", res[0])
	}
	return d, nil
}

func Balance(ctx context.Context, backend Backend, token, owner common.Address) (*big.Int, error) {
	if IsNative(token) {
		bal, err := backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("backend.BalanceAt: %w", err)
		}
		return bal, nil
	}
	return bigResult(Call(ctx, backend, token, contracts.ERC20, "balanceOf", owner))
}

func VaultShares(ctx context.Context, caller ethereum.ContractCaller, vault, owner common.Address) (*big.Int, error) {
	return bigResult(Call(ctx, caller, vault, contracts.ERC4626, "balanceOf", owner))
}

// VaultAssets returns the underlying assets owner's shares redeem for.
func VaultAssets(ctx context.Context, caller ethereum.ContractCaller, vault, owner common.Address) (*big.Int, error) {
	shares, err := VaultShares(ctx, caller, vault, owner)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return shares, nil
	}
	return bigResult(Call(ctx, caller, vault, contracts.ERC4626, "convertToAssets", shares))
}

func VaultAsset(ctx context.Context, caller ethereum.ContractCaller, vault common.Address) (common.Address, error) {
	res, err := Call(ctx, caller, vault, contracts.ERC4626, "asset")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := res[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected asset type %T", res[0])
	}
	return addr, nil
}

// BuildVaultRedeem redeems every share account holds in vault back to account.
func BuildVaultRedeem(ctx context.Context, caller ethereum.ContractCaller, account, vault common.Address) (types.Call, error) {
	shares, err := VaultShares(ctx, caller, vault, account)
	if err != nil {
		return types.Call{}, fmt.Errorf("failed to read vault shares: %w", err)
	}
	if shares.Sign() == 0 {
		return types.Call{}, fmt.Errorf("%w: account %s, vault %s", ErrNoShares, account.Hex(), vault.Hex())
	}

	data, err := contracts.ERC4626.Pack("redeem", shares, account, account)
	if err != nil {
		return types.Call{}, fmt.Errorf("failed to pack redeem: %w", err)
	}
	return types.Call{
		Target: vault,
		Value:  big.NewInt(0),
		Data:   data,
	}, nil
}

func bigResult(res []interface{}, err error) (*big.Int, error) {
	if err != nil {
		return nil, err
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", res[0])
	}
	return v, nil
}
