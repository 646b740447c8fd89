package invest

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/types"
)

const pendingPrefix = "invest:pending:"

type OperationKind string

const (
	OperationInvestment OperationKind = "investment"
	OperationWithdraw   OperationKind = "withdraw"
	// OperationCancel carries no user operation; Hash is an ERC-1271 digest.
	OperationCancel OperationKind = "cancel"
)

// PendingOperation waits for the passkey signature over Hash: an unsigned
// user operation, or a cancellation digest.
type PendingOperation struct {
	ID            uuid.UUID              `json:"id"`
	Kind          OperationKind          `json:"kind"`
	ChainID       uint64                 `json:"chain_id"`
	Account       common.Address         `json:"account"`
	UserOperation aa.RPCUserOperation    `json:"user_operation,omitempty"`
	Hash          common.Hash            `json:"hash"`
	Plan          types.TransactionPlan  `json:"plan"`
	JobIndex      *int                   `json:"job_index,omitempty"`
	JobID         *uuid.UUID             `json:"job_id,omitempty"`
	Schedule      *types.ScheduleRequest `json:"schedule,omitempty"`
	ExpiresAt     time.Time              `json:"expires_at"`
}

func pendingKey(id uuid.UUID) string {
	return pendingPrefix + id.String()
}

type Result struct {
	OperationID uuid.UUID  `json:"operation_id"`
	UserOpHash  string     `json:"user_op_hash"`
	TxHash      string     `json:"tx_hash"`
	JobID       *uuid.UUID `json:"job_id,omitempty"`
	Status      string     `json:"status"`
}
