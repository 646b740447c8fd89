package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

type JobStatus string

const (
	JobActive    JobStatus = "active"
	JobCancelled JobStatus = "cancelled"
	JobCompleted JobStatus = "completed"
)

type Trigger struct {
	StartTime int64 `json:"startTime" validate:"required,gt=0"`
	EndTime   int64 `json:"endTime" validate:"required,gtfield=StartTime"`
	Interval  int64 `json:"interval" validate:"required,gt=0"`
}

type TriggerCall struct {
	To    string        `json:"to" validate:"required,eth_addr"`
	Value int64         `json:"value" validate:"gte=0"`
	Data  hexutil.Bytes `json:"data" validate:"required"`
}

type JobData struct {
	Call    TriggerCall `json:"call" validate:"required"`
	ChainID string      `json:"chainId" validate:"required,numeric"`
	Account string      `json:"account" validate:"required,eth_addr"`
}

// ScheduleRequest is the body accepted by the scheduler's POST /jobs.
type ScheduleRequest struct {
	ID      uuid.UUID `json:"id"`
	Trigger Trigger   `json:"trigger" validate:"required"`
	Data    JobData   `json:"data" validate:"required"`
}

type Job struct {
	ID            uuid.UUID  `json:"id"`
	Status        JobStatus  `json:"status"`
	ChainID       string     `json:"chainId"`
	Account       string     `json:"account"`
	Target        string     `json:"target"`
	Value         int64      `json:"value"`
	CallData      string     `json:"callData"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	Interval      int64      `json:"interval"`
	NextExecution *time.Time `json:"nextExecution,omitempty"`
	Executions    int64      `json:"executions"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// SchedulerDetails exposes the session key the scheduler signs executions with.
type SchedulerDetails struct {
	Address string `json:"address"`
}

var jobNamespace = uuid.MustParse("6f1c0b8e-5b7a-4f0e-9a53-1f2d3c4b5a69")

// NewJobID derives the scheduler job ID from the on-chain record, so a job can
// be cancelled knowing nothing but the registry state.
func NewJobID(chainID string, account common.Address, index int, validAfter, validUntil, interval uint64) uuid.UUID {
	name := fmt.Sprintf("%s:%s:%d:%d:%d:%d",
		chainID,
		strings.ToLower(account.Hex()),
		index,
		validAfter,
		validUntil,
		interval,
	)
	return uuid.NewSHA1(jobNamespace, []byte(name))
}

type FrequencyUnit string

const (
	FrequencyMinutes FrequencyUnit = "minutes"
	FrequencyHours   FrequencyUnit = "hours"
	FrequencyDays    FrequencyUnit = "days"
)

// MaxIntervalSeconds is the longest refresh interval a plan may use.
const MaxIntervalSeconds = 365 * 86400

func ConvertToSeconds(value int64, unit FrequencyUnit) (int64, error) {
	if value <= 0 {
		return 0, fmt.Errorf("frequency must be positive, got %d", value)
	}
	var seconds int64
	switch unit {
	case FrequencyMinutes:
		seconds = 60
	case FrequencyHours:
		seconds = 3600
	case FrequencyDays:
		seconds = 86400
	default:
		return 0, fmt.Errorf("unknown frequency unit: %q", unit)
	}
	if value > MaxIntervalSeconds/seconds {
		return 0, fmt.Errorf("frequency %d %s exceeds one year", value, unit)
	}
	return value * seconds, nil
}
