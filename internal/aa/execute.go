package aa

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/types"
)

const (
	callTypeSingle byte = 0x00
	callTypeBatch  byte = 0x01
)

type execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

var executionsArgs = func() abi.Arguments {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// EncodeExecute builds the ERC-7579 execute call data. A single call uses the
// single execution mode, anything else the batch mode.
func EncodeExecute(calls []types.Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("no calls to execute")
	}

	var mode [32]byte
	var executionData []byte

	if len(calls) == 1 {
		mode[0] = callTypeSingle
		c := calls[0]
		executionData = append(executionData, c.Target.Bytes()...)
		executionData = append(executionData, common.LeftPadBytes(orZero(c.Value).Bytes(), 32)...)
		executionData = append(executionData, c.Data...)
	} else {
		mode[0] = callTypeBatch
		execs := make([]execution, 0, len(calls))
		for _, c := range calls {
			data := []byte(c.Data)
			if data == nil {
				data = []byte{}
			}
			execs = append(execs, execution{
				Target:   c.Target,
				Value:    orZero(c.Value),
				CallData: data,
			})
		}
		packed, err := executionsArgs.Pack(execs)
		if err != nil {
			return nil, fmt.Errorf("failed to pack executions: %w", err)
		}
		executionData = packed
	}

	out, err := contracts.ERC7579Account.Pack("execute", mode, executionData)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute: %w", err)
	}
	return out, nil
}

// NonceKey is the EntryPoint nonce key selecting validator on the account:
// the validator address right-padded to 24 bytes.
func NonceKey(validator common.Address) *big.Int {
	key := make([]byte, 24)
	copy(key, validator.Bytes())
	return new(big.Int).SetBytes(key)
}
