package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type InvestmentStatus string

const (
	InvestmentActive      InvestmentStatus = "active"
	InvestmentExpired     InvestmentStatus = "expired"
	InvestmentCancelled   InvestmentStatus = "cancelled"
	InvestmentUnscheduled InvestmentStatus = "unscheduled"
)

// Investment mirrors one job record of the AutoDCA executor.
// Vault is the zero address when proceeds stay in the account.
type Investment struct {
	SourceToken       common.Address `json:"source_token"`
	TargetToken       common.Address `json:"target_token"`
	Vault             common.Address `json:"vault"`
	Account           common.Address `json:"account"`
	ValidAfter        uint64         `json:"valid_after"`
	ValidUntil        uint64         `json:"valid_until"`
	PerExecutionLimit *big.Int       `json:"per_execution_limit"`
	RefreshInterval   uint64         `json:"refresh_interval"`
}

func (i Investment) HasVault() bool {
	return i.Vault != (common.Address{})
}

// ExpiredAt reports whether the validity window has closed at t.
func (i Investment) ExpiredAt(t time.Time) bool {
	return i.ValidUntil <= uint64(t.Unix())
}

// JobExecutionStats is written only by the registry contract.
type JobExecutionStats struct {
	Active                   bool     `json:"active"`
	LastExecutedAt           uint64   `json:"last_executed_at"`
	TotalExecutions          uint64   `json:"total_executions"`
	TotalTargetTokenReceived *big.Int `json:"total_target_token_received"`
}

type InvestmentView struct {
	Index      int               `json:"index"`
	JobID      uuid.UUID         `json:"job_id"`
	Investment Investment        `json:"investment"`
	Stats      JobExecutionStats `json:"stats"`
	Status     InvestmentStatus  `json:"status"`
}

type InvestmentList struct {
	Active  []InvestmentView `json:"active"`
	History []InvestmentView `json:"history"`
	NextJob int              `json:"next_job"`
}

// InvestmentRequest is what the wallet submits to set up a DCA plan. Amount
// is per execution, in source token units (e.g. "10.5").
type InvestmentRequest struct {
	ChainID        uint64        `json:"chain_id" validate:"required"`
	Account        string        `json:"account" validate:"required,eth_addr"`
	Amount         string        `json:"amount" validate:"required"`
	SourceToken    string        `json:"source_token" validate:"required,eth_addr"`
	TargetToken    string        `json:"target_token" validate:"required,eth_addr"`
	Vault          string        `json:"vault,omitempty" validate:"omitempty,eth_addr"`
	StartTime      int64         `json:"start_time" validate:"required,gt=0"`
	EndTime        int64         `json:"end_time" validate:"required,gt=0"`
	Frequency      int64         `json:"frequency" validate:"required,gt=0"`
	FrequencyUnit  FrequencyUnit `json:"frequency_unit" validate:"required,oneof=minutes hours days"`
	DummySignature string        `json:"dummy_signature,omitempty"`
}

type WithdrawRequest struct {
	ChainID        uint64 `json:"chain_id" validate:"required"`
	Account        string `json:"account" validate:"required,eth_addr"`
	Vault          string `json:"vault" validate:"required,eth_addr"`
	DummySignature string `json:"dummy_signature,omitempty"`
}

type VaultBalance struct {
	Vault     common.Address `json:"vault"`
	Asset     common.Address `json:"asset"`
	Shares    string         `json:"shares"`
	Assets    string         `json:"assets"`
	Formatted string         `json:"formatted"`
}
