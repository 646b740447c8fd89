package invest

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrOperationNotFound  = errors.New("pending operation not found or expired")
	ErrInvestmentNotFound = errors.New("investment not found")
	ErrNotScheduled       = errors.New("investment has no scheduled trigger")
	ErrQuoterUnavailable  = errors.New("no quoter deployed on this chain")
	ErrInvalidSignature   = errors.New("signature not accepted by the account")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SubmissionError means the user operation did not make it on chain, so
// nothing was changed and no trigger was registered.
type SubmissionError struct {
	Hash common.Hash
	Err  error
}

func (e *SubmissionError) Error() string {
	if e.Hash != (common.Hash{}) {
		return fmt.Sprintf("user operation %s failed: %v", e.Hash.Hex(), e.Err)
	}
	return fmt.Sprintf("user operation failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PartialFailureError means the job exists on chain but its trigger could not
// be registered. RetryTaskID is empty when no retry was queued.
type PartialFailureError struct {
	UserOpHash  common.Hash
	TxHash      common.Hash
	JobID       uuid.UUID
	RetryTaskID string
	Err         error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("job %s created on chain but trigger registration failed: %v", e.JobID, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
