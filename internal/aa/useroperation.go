package aa

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an ERC-4337 v0.7 user operation in its unpacked form.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// RPCUserOperation is the bundler JSON-RPC encoding of a UserOperation.
type RPCUserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func (op *UserOperation) RPC() RPCUserOperation {
	out := RPCUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		Factory:              op.Factory,
		FactoryData:          op.FactoryData,
		CallData:             op.CallData,
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            op.Signature,
	}
	if op.Paymaster != nil {
		out.Paymaster = op.Paymaster
		out.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		out.PaymasterData = op.PaymasterData
	}
	return out
}

func FromRPC(in RPCUserOperation) *UserOperation {
	return &UserOperation{
		Sender:                        in.Sender,
		Nonce:                         fromHexBig(in.Nonce),
		Factory:                       in.Factory,
		FactoryData:                   in.FactoryData,
		CallData:                      in.CallData,
		CallGasLimit:                  fromHexBig(in.CallGasLimit),
		VerificationGasLimit:          fromHexBig(in.VerificationGasLimit),
		PreVerificationGas:            fromHexBig(in.PreVerificationGas),
		MaxFeePerGas:                  fromHexBig(in.MaxFeePerGas),
		MaxPriorityFeePerGas:          fromHexBig(in.MaxPriorityFeePerGas),
		Paymaster:                     in.Paymaster,
		PaymasterVerificationGasLimit: fromHexBig(in.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       fromHexBig(in.PaymasterPostOpGasLimit),
		PaymasterData:                 in.PaymasterData,
		Signature:                     in.Signature,
	}
}

func (op *UserOperation) initCode() []byte {
	if op.Factory == nil {
		return nil
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

func (op *UserOperation) paymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	out := op.Paymaster.Bytes()
	gas := pack128(op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit)
	out = append(out, gas[:]...)
	return append(out, op.PaymasterData...)
}

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	packedArgs = abi.Arguments{
		{Type: addressT},
		{Type: uint256T},
		{Type: bytes32T},
		{Type: bytes32T},
		{Type: bytes32T},
		{Type: uint256T},
		{Type: bytes32T},
		{Type: bytes32T},
	}
	hashArgs = abi.Arguments{
		{Type: bytes32T},
		{Type: addressT},
		{Type: uint256T},
	}
)

// Hash computes the EntryPoint v0.7 user operation hash. The signature is not
// part of the hash.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := packedArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.initCode()),
		crypto.Keccak256Hash(op.CallData),
		pack128(op.VerificationGasLimit, op.CallGasLimit),
		orZero(op.PreVerificationGas),
		pack128(op.MaxPriorityFeePerGas, op.MaxFeePerGas),
		crypto.Keccak256Hash(op.paymasterAndData()),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}

	enc, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// pack128 concatenates two values as 16-byte big-endian words.
func pack128(hi, lo *big.Int) [32]byte {
	var out [32]byte
	orZero(hi).FillBytes(out[:16])
	orZero(lo).FillBytes(out[16:])
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func hexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(orZero(v))
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToInt()
}
