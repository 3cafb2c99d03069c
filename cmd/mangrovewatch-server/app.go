package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"mangrovewatch/adapters/jsonfile"
	mem "mangrovewatch/adapters/memory"
	redisAdapter "mangrovewatch/adapters/redis"
	sqlxAdapter "mangrovewatch/adapters/sqlx"
	"mangrovewatch/analytics"
	"mangrovewatch/api/httpapi"
	"mangrovewatch/config"
	"mangrovewatch/core"
	"mangrovewatch/engine"
	"mangrovewatch/gamify"
	"mangrovewatch/integrations/webhook"
	"mangrovewatch/realtime"
	"mangrovewatch/scheduler"
)

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Hub       *realtime.Hub
	Metrics   *analytics.CommunityMetrics
	Exporter  analytics.Exporter
	Service   *engine.Service
	Scheduler *scheduler.Scheduler
	Handler   http.Handler
	Server    *http.Server
}

// provideConfig loads MANGROVEWATCH_CONFIG_FILE when set, otherwise the
// MANGROVEWATCH_PROFILE profile, otherwise defaults plus environment.
func provideConfig(ctx context.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	var (
		cfg *config.Config
		err error
	)
	switch {
	case os.Getenv(config.EnvConfigFile) != "":
		cfg, err = config.LoadFromFile(os.Getenv(config.EnvConfigFile))
	case os.Getenv(config.EnvProfile) != "":
		cfg, err = config.LoadProfile(os.Getenv(config.EnvProfile))
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplySecrets(ctx, config.NewEnvironmentSecretStore()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideRules(cfg *config.Config) (core.Rules, error) {
	return cfg.Gamification.Rules()
}

// provideStorage opens the configured adapter; the cleanup closes pooled connections.
func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, func(), error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), func() {}, nil
	case "redis":
		store, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "sql":
		store, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "file":
		store, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// provideMetrics returns nil when analytics are disabled.
func provideMetrics(ctx context.Context, cfg *config.Config, storage engine.Storage) (*analytics.CommunityMetrics, error) {
	if !cfg.Analytics.Enabled {
		return nil, nil
	}
	metrics := analytics.NewCommunityMetrics()
	if err := metrics.Warm(ctx, storage); err != nil {
		return nil, err
	}
	return metrics, nil
}

func provideExporter(cfg *config.Config, logger *slog.Logger) analytics.Exporter {
	logExporter := analytics.NewLogExporter(logger)
	if cfg.Analytics.ExportEndpoint == "" {
		return logExporter
	}
	return analytics.NewMultiExporter(
		logExporter,
		analytics.NewHTTPExporter(cfg.Analytics.ExportEndpoint, cfg.Analytics.ExportAPIKey, cfg.Analytics.BatchSize),
	)
}

// provideWebhooks returns nil when no endpoints are configured.
func provideWebhooks(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Webhooks.Endpoints) == 0 {
		return nil
	}
	opts := []webhook.Option{
		webhook.WithClient(&http.Client{Timeout: cfg.Webhooks.Timeout}),
		webhook.WithLogger(logger),
	}
	if len(cfg.Webhooks.EventTypes) > 0 {
		types := make([]core.EventType, 0, len(cfg.Webhooks.EventTypes))
		for _, t := range cfg.Webhooks.EventTypes {
			types = append(types, core.EventType(t))
		}
		opts = append(opts, webhook.WithEventTypes(types...))
	}
	return webhook.New(cfg.Webhooks.Endpoints, opts...)
}

func provideService(
	cfg *config.Config,
	logger *slog.Logger,
	hub *realtime.Hub,
	storage engine.Storage,
	rules core.Rules,
	metrics *analytics.CommunityMetrics,
	sink *webhook.Sink,
) (*engine.Service, func()) {
	mode := engine.DispatchSync
	if cfg.Gamification.Async() {
		mode = engine.DispatchAsync
	}
	opts := []gamify.Option{
		gamify.WithRealtime(hub),
		gamify.WithStorage(storage),
		gamify.WithDispatchMode(mode),
		gamify.WithRules(rules),
		gamify.WithLogger(logger),
	}
	if sink != nil {
		opts = append(opts, gamify.WithWebhooks(sink))
	}
	if metrics != nil {
		opts = append(opts, gamify.WithAnalytics(metrics))
	}
	svc := gamify.New(opts...)
	return svc, svc.Close
}

func provideScheduler(
	cfg *config.Config,
	logger *slog.Logger,
	svc *engine.Service,
	metrics *analytics.CommunityMetrics,
	exporter analytics.Exporter,
) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(scheduler.WithLogger(logger), scheduler.WithJobTimeout(cfg.Server.ShutdownTimeout))
	if err != nil {
		return nil, err
	}
	if every := cfg.Gamification.LeaderboardRefreshInterval; every > 0 {
		if err := sched.ScheduleLeaderboardRefresh(every, svc); err != nil {
			return nil, err
		}
	}
	if metrics != nil {
		if err := sched.ScheduleRollupExport(cfg.Analytics.ExportInterval, metrics, exporter); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, metrics *analytics.CommunityMetrics, cfg *config.Config, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		RateLimitCleanup: cfg.Security.RateLimit.CleanupInterval,
		LeaderboardSize:  cfg.Gamification.LeaderboardSize,
		Metrics:          metrics,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler).With("env", string(cfg.Environment))
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}
