package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mangrovewatch/core"
)

// DefaultEventTypes are the milestones worth announcing outside the app.
var DefaultEventTypes = []core.EventType{
	core.EventAchievementUnlocked,
	core.EventLevelUp,
	core.EventBadgeAwarded,
	core.EventLeaderboardRefreshed,
}

// Sink posts domain events to configured HTTP endpoints.
// It is synchronous for determinism; register it on an async bus for production use.
type Sink struct {
	client    *http.Client
	endpoints []string
	types     map[core.EventType]struct{}
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithEventTypes replaces the set of forwarded event types.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    slog.Default(),
	}
	WithEventTypes(DefaultEventTypes...)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Accepts reports whether the sink forwards events of typ.
func (s *Sink) Accepts(typ core.EventType) bool {
	_, ok := s.types[typ]
	return ok
}

// OnEvent is an event bus handler; delivery failures are logged.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if err := s.Deliver(ctx, e); err != nil {
		s.log.Warn("webhook delivery failed", "event", e.Type, "id", e.ID, "error", err)
	}
}

// Deliver posts e to every endpoint and joins the per-endpoint errors.
// Events outside the configured types are skipped.
func (s *Sink) Deliver(ctx context.Context, e core.Event) error {
	if len(s.endpoints) == 0 || !s.Accepts(e.Type) {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var errs []error
	for _, ep := range s.endpoints {
		if err := s.post(ctx, ep, e, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ep, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) post(ctx context.Context, endpoint string, e core.Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Mangrovewatch-Event", string(e.Type))
	req.Header.Set("X-Mangrovewatch-Delivery", e.ID)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
