package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "mangrovewatch/adapters/memory"
	"mangrovewatch/analytics"
	"mangrovewatch/api/httpapi"
	"mangrovewatch/core"
	"mangrovewatch/engine"
	"mangrovewatch/gamify"
	"mangrovewatch/realtime"
)

type testServer struct {
	*httptest.Server
	svc *engine.Service
	hub *realtime.Hub
}

func newTestServer(t *testing.T, opts httpapi.Options) *testServer {
	t.Helper()
	hub := realtime.NewHub()
	metrics := analytics.NewCommunityMetrics()
	svc := gamify.New(
		gamify.WithStorage(mem.New()),
		gamify.WithDispatchMode(engine.DispatchSync),
		gamify.WithRealtime(hub),
		gamify.WithAnalytics(metrics),
	)
	opts.PathPrefix = "/api"
	opts.Metrics = metrics
	srv := httptest.NewServer(httpapi.NewMux(svc, hub, opts))
	t.Cleanup(func() {
		srv.Close()
		svc.Close()
	})
	return &testServer{Server: srv, svc: svc, hub: hub}
}

func report(user, address string) Report {
	return Report{
		UserID:      core.UserID(user),
		Location:    Location{Address: address},
		DamageType:  core.DamageEncroachment,
		Description: "new fencing across the tidal flat",
		Severity:    core.SeverityMedium,
		Images:      []string{"https://img.example.org/a.jpg"},
	}
}

func TestClient_ReportLifecycle(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{APIKeys: []string{"k1"}})
	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := client.SubmitReport(ctx, report("alice", "Bhitarkanika"))
	require.NoError(t, err)
	// 10 + 10 medium + 5 image, then 50 for the first report
	assert.Equal(t, int64(25), res.PointsAwarded)
	assert.Equal(t, int64(50), res.BonusPoints)
	assert.Equal(t, int64(75), res.State.Points)
	require.Len(t, res.Unlocked, 1)

	require.NoError(t, client.ChangeReportStatus(ctx, "alice", res.Report.ID, "pending", "resolved"))

	st, err := client.AdjustPoints(ctx, "alice", 30, "manual review")
	require.NoError(t, err)
	assert.Equal(t, int64(105), st.Points)
	assert.Equal(t, core.LevelGuardian, st.Level)

	state, err := client.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(105), state.Points)

	progress, err := client.Progress(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, progress.Next)
	assert.Equal(t, core.LevelProtector, progress.Next.Name)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveMembers)
	assert.Equal(t, 100, stats.ImpactScore)

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	require.NoError(t, client.DeleteUser(ctx, "alice"))
	err = client.DeleteUser(ctx, "alice")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClient_Leaderboards(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api/")
	require.NoError(t, err)
	ctx := context.Background()

	for _, r := range []Report{report("a", "Kutch"), report("b", "Goa"), report("b", "Kutch")} {
		_, err := client.SubmitReport(ctx, r)
		require.NoError(t, err)
	}

	lb, err := client.RefreshLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lb.Version)
	require.Len(t, lb.Standings, 2)
	assert.Equal(t, core.UserID("b"), lb.Standings[0].UserID)
	assert.Equal(t, core.BadgeGold, lb.Standings[0].Badge)
	require.NotNil(t, lb.Standings[0].Impact)
	assert.Equal(t, int64(2), lb.Standings[0].Impact.Reports)

	top, err := client.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top.Standings, 1)

	regional, err := client.RegionalLeaderboard(ctx, "goa", 0)
	require.NoError(t, err)
	require.Len(t, regional.Standings, 1)
	assert.Equal(t, core.UserID("b"), regional.Standings[0].UserID)

	_, err = client.RegionalLeaderboard(ctx, " ", 0)
	assert.Error(t, err)

	defs, err := client.Achievements(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 4)

	tiers, err := client.Levels(ctx)
	require.NoError(t, err)
	assert.Len(t, tiers, 4)
}

func TestClient_ValidationError(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	bad := report("alice", "")
	_, err = client.SubmitReport(context.Background(), bad)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "validation_failed", apiErr.Code)

	_, err = client.GetUser(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, "alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	srv.svc.Publish(ctx, core.NewLevelUp("bob", core.LevelScout, core.LevelGuardian))
	srv.svc.Publish(ctx, core.NewLevelUp("alice", core.LevelScout, core.LevelGuardian))

	select {
	case evt := <-events:
		assert.Equal(t, core.EventLevelUp, evt.Type)
		assert.Equal(t, core.UserID("alice"), evt.UserID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}

	cancel()
	for range events {
	}
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "wss://example.org/api/ws", deriveWSURL("https://example.org/api"))
	assert.Equal(t, "ws://localhost:8080/ws", deriveWSURL("http://localhost:8080"))
}
