package gamify

import (
	"context"
	"log/slog"
	"time"

	mem "mangrovewatch/adapters/memory"
	"mangrovewatch/analytics"
	"mangrovewatch/core"
	"mangrovewatch/engine"
	"mangrovewatch/integrations/webhook"
	"mangrovewatch/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	mode    engine.DispatchMode
	rules   core.Rules
	hub     *realtime.Hub
	clock   func() time.Time
	logger  *slog.Logger
	webhook *webhook.Sink
	hooks   []analytics.Hook
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithRules replaces both rule tables.
func WithRules(r core.Rules) Option { return func(c *config) { c.rules = r } }

// WithPointsTable overrides the per-report award table.
func WithPointsTable(t core.PointsTable) Option { return func(c *config) { c.rules.Points = t } }

// WithLevelTable overrides the level thresholds.
func WithLevelTable(t core.LevelTable) Option { return func(c *config) { c.rules.Levels = t } }

func WithClock(now func() time.Time) Option { return func(c *config) { c.clock = now } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithWebhooks forwards accepted events to the sink's endpoints.
func WithWebhooks(s *webhook.Sink) Option { return func(c *config) { c.webhook = s } }

// WithAnalytics feeds every event to the given hooks.
func WithAnalytics(hooks ...analytics.Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, hooks...) }
}

// New builds a configured Service. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: core.DefaultRules
//   - dispatch: async
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchAsync, rules: core.DefaultRules()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewService(cfg.storage, bus,
		engine.WithRules(cfg.rules),
		engine.WithClock(cfg.clock),
		engine.WithLogger(cfg.logger),
	)
	if cfg.hub != nil {
		bus.Subscribe(engine.EventAll, cfg.hub.Broadcast)
	}
	if cfg.webhook != nil {
		bus.Subscribe(engine.EventAll, func(ctx context.Context, e core.Event) {
			if cfg.webhook.Accepts(e.Type) {
				cfg.webhook.OnEvent(ctx, e)
			}
		})
	}
	if len(cfg.hooks) > 0 {
		bridge := analytics.NewBridge(cfg.hooks...)
		bus.Subscribe(engine.EventAll, bridge.OnEvent)
	}
	return svc
}
