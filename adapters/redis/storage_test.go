package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrovewatch/core"
)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, cleanup
}

func addPoints(n int64) func(*core.UserState) error {
	return func(st *core.UserState) error {
		st.Points += n
		return nil
	}
}

func TestStore_UpdateState(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()
	userID := core.UserID("test-user")

	state, err := store.UpdateState(ctx, userID, addPoints(50))
	require.NoError(t, err)
	assert.Equal(t, int64(50), state.Points)
	assert.Equal(t, int64(1), state.Version)

	state, err = store.UpdateState(ctx, userID, func(st *core.UserState) error {
		st.Points += 25
		st.Achievements = append(st.Achievements, core.UnlockedAchievement{ID: core.AchievementFirstReport, UnlockedAt: time.Now().UTC()})
		st.Progress.UniqueLocations = append(st.Progress.UniqueLocations, "Mangrove Bay")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(75), state.Points)
	assert.Equal(t, int64(2), state.Version)

	got, err := store.GetState(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), got.Points)
	assert.True(t, got.HasAchievement(core.AchievementFirstReport))
	assert.True(t, got.Progress.HasLocation("Mangrove Bay"))

	exists, err := client.Exists(ctx, userStateKey(userID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestStore_UpdateStateErrorLeavesState(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	_, err := store.UpdateState(ctx, "u", addPoints(10))
	require.NoError(t, err)
	_, err = store.UpdateState(ctx, "u", func(st *core.UserState) error {
		st.Points = 999
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := store.GetState(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Points)
	assert.Equal(t, int64(1), got.Version)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	conflicts := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.UpdateState(ctx, "busy", addPoints(1)); err != nil {
				assert.ErrorIs(t, err, core.ErrConflict)
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := store.GetState(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, int64(10-conflicts), got.Points)
	assert.Equal(t, got.Points, got.Version)
}

func TestStore_ListStatesCreationOrder(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	for _, id := range []core.UserID{"carol", "alice", "bob"} {
		_, err := store.UpdateState(ctx, id, addPoints(1))
		require.NoError(t, err)
	}
	// a second write must not re-append the user
	_, err := store.UpdateState(ctx, "carol", addPoints(1))
	require.NoError(t, err)

	states, err := store.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, core.UserID("carol"), states[0].UserID)
	assert.Equal(t, core.UserID("alice"), states[1].UserID)
	assert.Equal(t, core.UserID("bob"), states[2].UserID)
}

func TestStore_ApplyStandings(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	_, err := store.UpdateState(ctx, "alice", addPoints(600))
	require.NoError(t, err)

	err = store.ApplyStandings(ctx, []core.Standing{
		{UserID: "alice", Rank: 1, Badge: core.BadgeGold},
		{UserID: "ghost", Rank: 2, Badge: core.BadgeSilver},
	})
	require.NoError(t, err)

	got, err := store.GetState(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rank)
	assert.Equal(t, core.BadgeGold, got.Badge)
	assert.Equal(t, int64(1), got.Version)

	states, err := store.ListStates(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestStore_DeleteState(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	_, err := store.UpdateState(ctx, "alice", addPoints(1))
	require.NoError(t, err)
	_, err = store.UpdateState(ctx, "bob", addPoints(1))
	require.NoError(t, err)

	require.NoError(t, store.DeleteState(ctx, "alice"))
	assert.ErrorIs(t, store.DeleteState(ctx, "alice"), core.ErrNotFound)

	states, err := store.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, core.UserID("bob"), states[0].UserID)
}

func TestStore_EmptyUser(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	userID := core.UserID("nonexistent-user")
	state, err := store.GetState(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, userID, state.UserID)
	assert.Equal(t, int64(0), state.Points)
	assert.Equal(t, core.LevelScout, state.Level)
	assert.Empty(t, state.Achievements)

	exists, err := client.Exists(ctx, userStateKey(userID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, "", config.Password)
	assert.Equal(t, 0, config.DB)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 2, config.MinIdleConns)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
	assert.Equal(t, 3*time.Second, config.WriteTimeout)
}
