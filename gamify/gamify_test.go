package gamify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	mem "mangrovewatch/adapters/memory"
	"mangrovewatch/analytics"
	"mangrovewatch/core"
	"mangrovewatch/engine"
	"mangrovewatch/integrations/webhook"
	"mangrovewatch/realtime"
)

func sampleReport(user string) core.Report {
	return core.Report{
		UserID:      core.UserID(user),
		Location:    core.Location{Address: "Pichavaram"},
		DamageType:  core.DamagePollution,
		Description: "oil sheen near the roots",
		Severity:    core.SeverityHigh,
	}
}

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	_, ch := hub.Subscribe(16, realtime.OfTypes(core.EventLevelUp))
	svc := New(
		WithRealtime(hub),
		WithStorage(mem.New()),
		WithDispatchMode(engine.DispatchSync),
	)
	defer svc.Close()

	res, err := svc.SubmitReport(context.Background(), sampleReport("alice"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// 10 + 15 high, plus 50 first report bonus
	if res.State.Points != 75 {
		t.Fatalf("expected 75 points, got %d", res.State.Points)
	}

	svc.Publish(context.Background(), core.NewLevelUp("alice", core.LevelScout, core.LevelGuardian))
	ev := <-ch
	if ev.UserID != "alice" || ev.Type != core.EventLevelUp {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestInMemoryFallback(t *testing.T) {
	svc := New(WithDispatchMode(engine.DispatchSync))
	defer svc.Close()
	if _, err := svc.SubmitReport(context.Background(), sampleReport("bob")); err != nil {
		t.Fatalf("fallback submit: %v", err)
	}
	state, err := svc.GetState(context.Background(), "bob")
	if err != nil {
		t.Fatalf("fallback get state: %v", err)
	}
	if state.Progress.TotalReports != 1 {
		t.Fatalf("expected 1 report, got %d", state.Progress.TotalReports)
	}
}

func TestCustomTables(t *testing.T) {
	points := core.DefaultPointsTable()
	points.Base = 100
	levels := core.LevelTable{
		{Level: core.LevelScout, MinPoints: 0},
		{Level: core.LevelGuardian, MinPoints: 150},
		{Level: core.LevelProtector, MinPoints: 300},
		{Level: core.LevelChampion, MinPoints: 600},
	}
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := New(
		WithDispatchMode(engine.DispatchSync),
		WithPointsTable(points),
		WithLevelTable(levels),
		WithClock(func() time.Time { return fixed }),
	)
	defer svc.Close()

	res, err := svc.SubmitReport(context.Background(), sampleReport("carol"))
	if err != nil {
		t.Fatal(err)
	}
	// 100 + 15 + 50 bonus = 165
	if res.State.Points != 165 || res.State.Level != core.LevelGuardian {
		t.Fatalf("unexpected state %d %s", res.State.Points, res.State.Level)
	}
	if !res.Report.CreatedAt.Equal(fixed) {
		t.Fatalf("clock not applied: %v", res.Report.CreatedAt)
	}
}

func TestWebhooksAndAnalyticsWiring(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	metrics := analytics.NewCommunityMetrics()
	svc := New(
		WithDispatchMode(engine.DispatchSync),
		WithWebhooks(webhook.New([]string{srv.URL})),
		WithAnalytics(metrics),
	)
	defer svc.Close()

	if _, err := svc.SubmitReport(context.Background(), sampleReport("dave")); err != nil {
		t.Fatal(err)
	}
	// only achievement_unlocked (FIRST_REPORT) is a default webhook type here
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected 1 webhook delivery, got %d", got)
	}
	if stats := metrics.Stats(time.Now()); stats.ActiveMembers != 1 || stats.TotalReports != 1 {
		t.Fatalf("analytics not fed: %+v", stats)
	}
}
