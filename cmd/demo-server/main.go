package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"mangrovewatch/analytics"
	"mangrovewatch/api/httpapi"
	"mangrovewatch/core"
	"mangrovewatch/engine"
	"mangrovewatch/gamify"
	"mangrovewatch/realtime"
)

// seedReports is a small community with enough activity to populate the
// leaderboard, a regional board and the stats page.
var seedReports = []core.Report{
	{UserID: "priya", Location: core.Location{Address: "Sundarbans"}, DamageType: core.DamageDeforestation, Severity: core.SeverityCritical, Images: []string{"s1.jpg"},
		Description: strings.Repeat("Large patch of Avicennia cleared for a shrimp pond, stumps still fresh. ", 2)},
	{UserID: "priya", Location: core.Location{Address: "Pichavaram"}, DamageType: core.DamagePollution, Severity: core.SeverityHigh, Images: []string{"p1.jpg"},
		Description: "Plastic waste caught in prop roots after the festival"},
	{UserID: "arjun", Location: core.Location{Address: "Bhitarkanika"}, DamageType: core.DamageEncroachment, Severity: core.SeverityMedium,
		Description: "New fencing across the tidal creek"},
	{UserID: "meera", Location: core.Location{Address: "Kutch Coast"}, DamageType: core.DamageNaturalDisaster, Severity: core.SeverityLow, Images: []string{"k1.jpg", "k2.jpg"},
		Description: "Storm surge flattened seedlings"},
	{UserID: "meera", Location: core.Location{Address: "Sundarbans"}, DamageType: core.DamageOther, Severity: core.SeverityMedium,
		Description: "Unmarked boats anchored in the core zone"},
}

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(textHandler)
	slog.SetDefault(logger)

	ctx := context.Background()
	hub := realtime.NewHub()
	metrics := analytics.NewCommunityMetrics()
	svc := gamify.New(
		gamify.WithRealtime(hub),
		gamify.WithAnalytics(metrics),
		gamify.WithDispatchMode(engine.DispatchSync),
		gamify.WithLogger(logger),
	)
	defer svc.Close()

	for _, r := range seedReports {
		if _, err := svc.SubmitReport(ctx, r); err != nil {
			slog.Error("seed report failed", "user", r.UserID, "error", err)
			os.Exit(1)
		}
	}
	if _, err := svc.RefreshLeaderboard(ctx); err != nil {
		slog.Error("initial leaderboard refresh failed", "error", err)
		os.Exit(1)
	}

	handler := httpapi.NewMux(svc, hub, httpapi.Options{
		AllowCORSOrigin: "*",
		Metrics:         metrics,
		Logger:          logger,
	})

	slog.Info("starting demo server on :8080", "seeded_reports", len(seedReports))

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
