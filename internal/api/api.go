// Package api is the wallet HTTP API: investment orchestration, vault
// withdrawals, quotes and the token-data proxy.
package api

import "time"

const apiVersion = "1.0.0"

type APIResponse[T any] struct {
	Data      T             `json:"data,omitempty"`
	Error     ErrorResponse `json:"error"`
	Status    int           `json:"status,omitempty"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version"`
}

type ErrorResponse struct {
	Message          string `json:"message"`
	DetailedResponse string `json:"details,omitempty"`
}

const (
	MsgInvalidRequest       = "Invalid request body"
	MsgInternalError        = "An internal error occurred"
	MsgOperationNotFound    = "Operation not found or expired"
	MsgInvestmentNotFound   = "Investment not found"
	MsgNotScheduled         = "Investment has no scheduled trigger"
	MsgInvalidSignature     = "Signature rejected by the account"
	MsgQuoterUnavailable    = "Quotes are not available on this chain"
	MsgSubmissionFailed     = "User operation failed"
	MsgTriggerNotRegistered = "Job created on chain but trigger registration failed"
)

func NewErrorResponseWithMessage(message string) APIResponse[interface{}] {
	return APIResponse[interface{}]{
		Error: ErrorResponse{
			Message: message,
		},
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   apiVersion,
	}
}

func NewErrorResponseWithDetails(message, details string) APIResponse[interface{}] {
	resp := NewErrorResponseWithMessage(message)
	resp.Error.DetailedResponse = details
	return resp
}

func NewSuccessResponse[T any](code int, data T) APIResponse[T] {
	return APIResponse[T]{
		Status:    code,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   apiVersion,
	}
}
