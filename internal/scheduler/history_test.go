package scheduler

import (
	"errors"
	"testing"
	"time"

	testhelpers "github.com/fundlens/fundlens/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) (*HistoryRepository, func()) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "profile")
	return NewHistoryRepository(db.Conn()), cleanup
}

func TestRecord_SuccessfulRun(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	started := time.Date(2026, 8, 30, 2, 30, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)

	require.NoError(t, history.Record("profile_refresh", started, finished, nil))

	runs, err := history.GetRecent("profile_refresh", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "profile_refresh", run.Job)
	assert.True(t, run.OK)
	assert.Equal(t, started, run.StartedAt)
	assert.Equal(t, finished, run.FinishedAt)
	assert.Equal(t, int64(3000), run.Detail.DurationMS)
	assert.Empty(t, run.Detail.Error)
}

func TestRecord_FailedRunKeepsErrorDetail(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, history.Record("cloud_backup", started, started.Add(time.Second),
		errors.New("bucket unreachable")))

	runs, err := history.GetRecent("cloud_backup", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].OK)
	assert.Equal(t, "bucket unreachable", runs[0].Detail.Error)
}

func TestGetRecent_NewestFirstAndLimited(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	base := time.Date(2026, 8, 1, 2, 30, 0, 0, time.UTC)
	for day := 0; day < 5; day++ {
		started := base.AddDate(0, 0, day)
		require.NoError(t, history.Record("valuation_update", started, started.Add(time.Minute), nil))
	}

	runs, err := history.GetRecent("valuation_update", 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, base.AddDate(0, 0, 4), runs[0].StartedAt)
	assert.Equal(t, base.AddDate(0, 0, 3), runs[1].StartedAt)
	assert.Equal(t, base.AddDate(0, 0, 2), runs[2].StartedAt)
}

func TestGetRecent_FiltersByJob(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, history.Record("profile_refresh", now, now.Add(time.Second), nil))
	require.NoError(t, history.Record("valuation_update", now, now.Add(time.Second), nil))

	runs, err := history.GetRecent("valuation_update", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "valuation_update", runs[0].Job)
}
