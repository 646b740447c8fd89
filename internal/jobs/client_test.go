package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/types"
)

func TestClient(t *testing.T) {
	jobID := uuid.New()
	var cancelled atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(APIKeyHeader) != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/details":
			_ = json.NewEncoder(w).Encode(types.SchedulerDetails{Address: "0x5555555555555555555555555555555555555555"})
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			var req types.ScheduleRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(types.Job{ID: req.ID, Status: types.JobActive, Account: req.Data.Account})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/"+jobID.String():
			status := types.JobActive
			if cancelled.Load() {
				status = types.JobCancelled
			}
			_ = json.NewEncoder(w).Encode(types.Job{ID: jobID, Status: status})
		case r.Method == http.MethodDelete && r.URL.Path == "/jobs/"+jobID.String():
			cancelled.Store(true)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", logrus.New(), WithRetryMax(0))
	ctx := context.Background()

	d, err := c.Details(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x5555555555555555555555555555555555555555", d.Address)

	job, err := c.Schedule(ctx, types.ScheduleRequest{
		ID:      jobID,
		Trigger: types.Trigger{StartTime: 1, EndTime: 2, Interval: 1},
		Data:    types.JobData{ChainID: "8453", Account: "0x1111111111111111111111111111111111111111"},
	})
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, types.JobActive, job.Status)

	require.NoError(t, c.Cancel(ctx, jobID))
	job, err = c.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, job.Status)

	_, err = c.Get(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, c.Cancel(ctx, uuid.New()), ErrNotFound)
}

func TestClient_StatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", logrus.New(), WithRetryMax(1))
	_, err := c.Details(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, "upstream down", statusErr.Body)
	assert.Equal(t, int32(2), calls.Load(), "5xx is retried")
}
