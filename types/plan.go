package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Call is one entry of a batch executed by the smart account.
type Call struct {
	Target common.Address `json:"to"`
	Value  *big.Int       `json:"value"`
	Data   hexutil.Bytes  `json:"data"`
}

type CallKind string

const (
	CallInstallModule CallKind = "install_module"
	CallEnableSession CallKind = "enable_session"
	CallCreateJob     CallKind = "create_job"
	CallVaultRedeem   CallKind = "vault_redeem"
)

type PlannedCall struct {
	Kind CallKind `json:"kind"`
	Call
}

// TransactionPlan is submitted as a single user operation, so it either
// applies completely or not at all.
type TransactionPlan struct {
	Calls []PlannedCall `json:"calls"`
}

func (p *TransactionPlan) Add(kind CallKind, call Call) {
	if call.Value == nil {
		call.Value = big.NewInt(0)
	}
	p.Calls = append(p.Calls, PlannedCall{Kind: kind, Call: call})
}

func (p *TransactionPlan) Count(kind CallKind) int {
	n := 0
	for _, c := range p.Calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (p *TransactionPlan) Raw() []Call {
	calls := make([]Call, 0, len(p.Calls))
	for _, c := range p.Calls {
		calls = append(calls, c.Call)
	}
	return calls
}
