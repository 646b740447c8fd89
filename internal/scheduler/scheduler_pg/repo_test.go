package scheduler_pg

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/internal/postgres"
	"github.com/brewit-money/wallet/internal/scheduler"
	"github.com/brewit-money/wallet/types"
)

type testConfig struct {
	DSN string `envconfig:"SCHEDULER_TEST_DSN"`
}

func newRepo(t *testing.T) *Repo {
	t.Helper()
	var cfg testConfig
	require.NoError(t, envconfig.Process("", &cfg))
	if cfg.DSN == "" {
		t.Skip("SCHEDULER_TEST_DSN is not set")
	}
	pool, err := postgres.Connect(context.Background(), logrus.New(), cfg.DSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewRepo(pool)
}

func job(next time.Time) types.Job {
	start := next.Add(-time.Minute).Truncate(time.Second)
	return types.Job{
		ID:            uuid.New(),
		ChainID:       "8453",
		Account:       "0x1111111111111111111111111111111111111111",
		Target:        "0xD7945bbAB1A41a1C3736ED5b2411beA809a2ee2b",
		CallData:      "0xdeadbeef",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Interval:      60,
		NextExecution: &next,
	}
}

func TestRepo_Lifecycle(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	j := job(now.Add(-time.Second))
	require.NoError(t, repo.Create(ctx, j))
	assert.ErrorIs(t, repo.Create(ctx, j), scheduler.ErrConflict)

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobActive, got.Status)
	assert.Equal(t, "0xdeadbeef", got.CallData)

	due, err := repo.GetDue(ctx, now)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, j.ID)

	require.NoError(t, repo.SetNext(ctx, j.ID, now.Add(time.Minute)))
	require.NoError(t, repo.RecordExecution(ctx, scheduler.Execution{
		JobID:       j.ID,
		ScheduledAt: now,
		UserOpHash:  "0xaa",
		Success:     true,
	}))
	got, err = repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Executions)

	cancelled, err := repo.Cancel(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextExecution)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, scheduler.ErrNotFound)
}
