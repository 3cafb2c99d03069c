package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"mangrovewatch/analytics"
	"mangrovewatch/leaderboard"
)

// Refresher recomputes the leaderboard snapshot.
type Refresher interface {
	RefreshLeaderboard(ctx context.Context) (*leaderboard.Snapshot, error)
}

// Scheduler runs the periodic maintenance jobs of the server.
type Scheduler struct {
	sched   gocron.Scheduler
	log     *slog.Logger
	timeout time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithJobTimeout bounds the context handed to each run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(opts ...Option) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, log: slog.Default(), timeout: 30 * time.Second}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ScheduleLeaderboardRefresh refreshes the leaderboard every interval,
// starting immediately. Overlapping runs are skipped.
func (s *Scheduler) ScheduleLeaderboardRefresh(interval time.Duration, r Refresher) error {
	if r == nil {
		return errors.New("refresher is required")
	}
	return s.every("leaderboard-refresh", interval, func(ctx context.Context) error {
		snap, err := r.RefreshLeaderboard(ctx)
		if err != nil {
			return err
		}
		s.log.Debug("scheduled leaderboard refresh", "version", snap.Version, "users", len(snap.Standings))
		return nil
	})
}

// ScheduleRollupExport exports daily and monthly community rollups every interval.
func (s *Scheduler) ScheduleRollupExport(interval time.Duration, metrics *analytics.CommunityMetrics, exporter analytics.Exporter) error {
	if metrics == nil || exporter == nil {
		return errors.New("metrics and exporter are required")
	}
	return s.every("rollup-export", interval, func(ctx context.Context) error {
		return analytics.ExportRollups(ctx, metrics, exporter, time.Now().UTC())
	})
}

func (s *Scheduler) every(name string, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", name)
	}
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := fn(ctx); err != nil {
				s.log.Error("scheduled job failed", "job", name, "error", err)
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Jobs lists the names of scheduled jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() { s.sched.Start() }

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error { return s.sched.Shutdown() }
