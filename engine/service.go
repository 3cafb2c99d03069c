package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mangrovewatch/core"
	"mangrovewatch/leaderboard"
)

// ErrInvalidInput wraps argument errors detected before storage is touched.
var ErrInvalidInput = errors.New("invalid input")

// Service wires storage, event bus, and the rules engine into the host
// operations invoked after report-affecting events.
type Service struct {
	storage Storage
	bus     *EventBus
	rules   core.Rules
	log     *slog.Logger
	now     func() time.Time

	refreshMu sync.Mutex
	version   atomic.Int64
	snapshot  atomic.Pointer[leaderboard.Snapshot]
}

// Option configures a Service.
type Option func(*Service)

// WithRules overrides the point and level tables.
func WithRules(r core.Rules) Option { return func(s *Service) { s.rules = r } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for unlock timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(storage Storage, bus *EventBus, opts ...Option) *Service {
	if storage == nil || bus == nil {
		panic("NewService requires non-nil storage and bus")
	}
	s := &Service{
		storage: storage,
		bus:     bus,
		rules:   core.DefaultRules(),
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmitResult is returned to the report-submission caller.
type SubmitResult struct {
	Report core.Report `json:"report"`
	core.Outcome
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// Rules exposes the tables the service evaluates against.
func (s *Service) Rules() core.Rules { return s.rules }

// SubmitReport scores a validated report and applies it to the submitting
// user's state in one serialized update.
func (s *Service) SubmitReport(ctx context.Context, r core.Report) (SubmitResult, error) {
	user, err := core.NormalizeUserID(r.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.now()
	r.UserID = user
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.Status == "" {
		r.Status = core.StatusPending
	}

	var out core.Outcome
	st, err := s.storage.UpdateState(ctx, user, func(st *core.UserState) error {
		applied, err := s.rules.ApplyReport(*st, r, now)
		if err != nil {
			return err
		}
		out = applied
		*st = out.State
		return nil
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("apply report %s: %w", r.ID, err)
	}
	out.State = st

	s.log.Info("report applied",
		"user", user,
		"report", r.ID,
		"report_points", out.ReportPoints,
		"bonus_points", out.BonusPoints,
		"total", st.Points,
		"level", st.Level)

	s.bus.Publish(ctx, core.NewReportSubmitted(user, r, out.ReportPoints))
	s.bus.Publish(ctx, core.NewPointsAdded(user, out.ReportPoints+out.BonusPoints, st.Points, "report"))
	for _, def := range out.Unlocked {
		s.bus.Publish(ctx, core.NewAchievementUnlocked(user, def))
	}
	if s.promoted(out.PreviousLevel, st.Level) {
		s.bus.Publish(ctx, core.NewLevelUp(user, out.PreviousLevel, st.Level))
	}
	return SubmitResult{Report: r, Outcome: out}, nil
}

// AdjustPoints applies an administrative correction to a user's points.
func (s *Service) AdjustPoints(ctx context.Context, user core.UserID, delta int64, reason string) (core.UserState, error) {
	if delta == 0 {
		return core.UserState{}, fmt.Errorf("%w: delta cannot be zero", ErrInvalidInput)
	}
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserState{}, err
	}
	var previous core.Level
	st, err := s.storage.UpdateState(ctx, normalized, func(st *core.UserState) error {
		previous = s.rules.Levels.Resolve(st.Points)
		next, err := s.rules.AdjustPoints(*st, delta, s.now())
		if err != nil {
			return err
		}
		*st = next
		return nil
	})
	if err != nil {
		return core.UserState{}, err
	}
	s.log.Warn("points adjusted", "user", normalized, "delta", delta, "reason", reason, "total", st.Points)
	s.bus.Publish(ctx, core.NewPointsAdded(normalized, delta, st.Points, reason))
	if s.promoted(previous, st.Level) {
		s.bus.Publish(ctx, core.NewLevelUp(normalized, previous, st.Level))
	}
	return st, nil
}

func (s *Service) promoted(from, to core.Level) bool {
	return s.rules.Levels.Index(to) > s.rules.Levels.Index(from)
}

// RefreshLeaderboard recomputes ranks and badges for every user from a
// point-in-time snapshot, persists them and publishes the new version.
func (s *Service) RefreshLeaderboard(ctx context.Context) (*leaderboard.Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	states, err := s.storage.ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	snap := leaderboard.NewSnapshot(s.version.Add(1), s.now(), states)
	if err := s.storage.ApplyStandings(ctx, snap.Standings); err != nil {
		return nil, fmt.Errorf("apply standings: %w", err)
	}
	s.snapshot.Store(snap)

	previous := make(map[core.UserID]core.Badge, len(states))
	for _, st := range states {
		previous[st.UserID] = st.Badge
	}
	for _, standing := range snap.Standings {
		if standing.Badge != core.BadgeNone && standing.Badge != previous[standing.UserID] {
			s.bus.Publish(ctx, core.NewBadgeAwarded(standing.UserID, standing.Badge, standing.Rank))
		}
	}
	s.bus.Publish(ctx, core.NewLeaderboardRefreshed(snap.Version, len(snap.Standings)))
	s.log.Debug("leaderboard refreshed", "version", snap.Version, "users", len(snap.Standings))
	return snap, nil
}

// Leaderboard returns the latest snapshot, computing one if none exists yet.
func (s *Service) Leaderboard(ctx context.Context) (*leaderboard.Snapshot, error) {
	if snap := s.snapshot.Load(); snap != nil {
		return snap, nil
	}
	return s.RefreshLeaderboard(ctx)
}

// RegionalLeaderboard ranks users who reported from locations matching region.
func (s *Service) RegionalLeaderboard(ctx context.Context, region string, n int) ([]core.Standing, error) {
	if strings.TrimSpace(region) == "" {
		return nil, fmt.Errorf("%w: region is required", ErrInvalidInput)
	}
	states, err := s.storage.ListStates(ctx)
	if err != nil {
		return nil, err
	}
	return leaderboard.Regional(states, region, n), nil
}

func (s *Service) GetState(ctx context.Context, user core.UserID) (core.UserState, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserState{}, err
	}
	return s.storage.GetState(ctx, normalized)
}

// Progress builds the profile view, preferring the latest snapshot rank.
func (s *Service) Progress(ctx context.Context, user core.UserID) (core.Progress, error) {
	st, err := s.GetState(ctx, user)
	if err != nil {
		return core.Progress{}, err
	}
	if standing, ok := s.snapshot.Load().Get(st.UserID); ok {
		st.Rank = standing.Rank
		st.Badge = standing.Badge
	}
	return s.rules.BuildProgress(st), nil
}

// DeleteUser removes a user's gamification state on account deletion.
func (s *Service) DeleteUser(ctx context.Context, user core.UserID) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteState(ctx, normalized); err != nil {
		return err
	}
	s.log.Info("user deleted", "user", normalized)
	s.bus.Publish(ctx, core.NewUserDeleted(normalized))
	return nil
}

// ChangeReportStatus validates an administrative triage move and announces
// it. Report records themselves live with the report-management service.
func (s *Service) ChangeReportStatus(ctx context.Context, user core.UserID, reportID string, from, to core.ReportStatus) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	if reportID == "" {
		return fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}
	if err := core.ValidateTransition(from, to); err != nil {
		return err
	}
	s.bus.Publish(ctx, core.NewReportStatusChanged(normalized, reportID, from, to))
	return nil
}

func (s *Service) Close() { s.bus.Close() }
