package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrovewatch/analytics"
	"mangrovewatch/leaderboard"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) RefreshLeaderboard(context.Context) (*leaderboard.Snapshot, error) {
	n := c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return leaderboard.NewSnapshot(int64(n), time.Now(), nil), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduleLeaderboardRefresh(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	r := &countingRefresher{}
	require.NoError(t, s.ScheduleLeaderboardRefresh(20*time.Millisecond, r))
	assert.Equal(t, []string{"leaderboard-refresh"}, s.Jobs())

	s.Start()
	waitFor(t, func() bool { return r.calls.Load() >= 2 })
	require.NoError(t, s.Shutdown())
}

func TestFailingJobKeepsRunning(t *testing.T) {
	s, err := New(WithJobTimeout(time.Second))
	require.NoError(t, err)
	r := &countingRefresher{err: errors.New("storage down")}
	require.NoError(t, s.ScheduleLeaderboardRefresh(20*time.Millisecond, r))

	s.Start()
	waitFor(t, func() bool { return r.calls.Load() >= 2 })
	require.NoError(t, s.Shutdown())
}

func TestScheduleValidation(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer func() { _ = s.Shutdown() }()

	assert.Error(t, s.ScheduleLeaderboardRefresh(0, &countingRefresher{}))
	assert.Error(t, s.ScheduleLeaderboardRefresh(time.Second, nil))
	assert.Error(t, s.ScheduleRollupExport(time.Second, nil, analytics.NewLogExporter(nil)))
	require.NoError(t, s.ScheduleRollupExport(time.Hour, analytics.NewCommunityMetrics(), analytics.NewLogExporter(nil)))
	assert.Equal(t, []string{"rollup-export"}, s.Jobs())
}
