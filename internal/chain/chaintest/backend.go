// Package chaintest provides an in-memory chain backend for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Handler func(args []interface{}) ([]interface{}, error)

type key struct {
	target   common.Address
	selector [4]byte
}

type route struct {
	parsed abi.ABI
	method string
	fn     Handler
}

// Backend answers eth_call by ABI method, per target contract.
type Backend struct {
	mu       sync.Mutex
	routes   map[key]route
	balances map[common.Address]*big.Int
	calls    []ethereum.CallMsg

	TipCap  *big.Int
	BaseFee *big.Int
}

func NewBackend() *Backend {
	return &Backend{
		routes:   make(map[key]route),
		balances: make(map[common.Address]*big.Int),
		TipCap:   big.NewInt(1_000_000_000),
		BaseFee:  big.NewInt(2_000_000_000),
	}
}

func (b *Backend) Handle(target common.Address, parsed abi.ABI, method string, fn Handler) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: unknown method %s", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[key{target: target, selector: sel}] = route{parsed: parsed, method: method, fn: fn}
}

// Returns registers a handler that always answers with values.
func (b *Backend) Returns(target common.Address, parsed abi.ABI, method string, values ...interface{}) {
	b.Handle(target, parsed, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

func (b *Backend) Fails(target common.Address, parsed abi.ABI, method string, err error) {
	b.Handle(target, parsed, method, func([]interface{}) ([]interface{}, error) {
		return nil, err
	})
}

func (b *Backend) SetBalance(account common.Address, balance *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = balance
}

func (b *Backend) Calls() []ethereum.CallMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ethereum.CallMsg(nil), b.calls...)
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("chaintest: malformed call")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])

	b.mu.Lock()
	b.calls = append(b.calls, msg)
	r, ok := b.routes[key{target: *msg.To, selector: sel}]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %x on %s", sel, msg.To.Hex())
	}

	m := r.parsed.Methods[r.method]
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("chaintest: unpack %s: %w", r.method, err)
	}
	out, err := r.fn(args)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(out...)
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return b.TipCap, nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: b.BaseFee, Number: big.NewInt(1)}, nil
}
