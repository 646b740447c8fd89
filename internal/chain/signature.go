package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/brewit-money/wallet/internal/contracts"
)

// IsValidSignature asks account, through ERC-1271, whether signature
// authorizes hash. The account routes the check to its installed validator.
func IsValidSignature(ctx context.Context, caller ethereum.ContractCaller, account common.Address, hash common.Hash, signature []byte) (bool, error) {
	res, err := Call(ctx, caller, account, contracts.ERC7579Account, "isValidSignature", hash, signature)
	if err != nil {
		return false, err
	}
	magic, ok := res[0].([4]byte)
	if !ok {
		return false, fmt.Errorf("unexpected result type %T", res[0])
	}
	return magic == contracts.ERC1271MagicValue, nil
}
