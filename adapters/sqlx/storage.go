package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mangrovewatch/core"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// maxRetries bounds attempts when a concurrent writer wins the row.
const maxRetries = 8

// Config holds SQL connection configuration. MySQL DSNs need parseTime=true.
type Config struct {
	Driver          Driver        `json:"driver" env:"MANGROVEWATCH_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"MANGROVEWATCH_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"MANGROVEWATCH_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	AutoMigrate     bool          `json:"auto_migrate" env:"MANGROVEWATCH_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns pool defaults for driver.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
	switch driver {
	case DriverMySQL:
		cfg.DSN = "root:password@tcp(localhost:3306)/mangrovewatch?parseTime=true"
	default:
		cfg.DSN = "postgres://localhost:5432/mangrovewatch?sslmode=disable"
	}
	return cfg
}

// Store persists one row per user in user_states.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a connection pool and optionally creates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	db, err := sqlx.ConnectContext(ctx, string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

const postgresSchema = `CREATE TABLE IF NOT EXISTS user_states (
	seq BIGSERIAL PRIMARY KEY,
	user_id VARCHAR(191) NOT NULL UNIQUE,
	points BIGINT NOT NULL DEFAULT 0,
	level VARCHAR(32) NOT NULL,
	achievements TEXT NOT NULL,
	progress TEXT NOT NULL,
	leaderboard_rank INTEGER NOT NULL DEFAULT 0,
	badge VARCHAR(16) NOT NULL DEFAULT '',
	version BIGINT NOT NULL DEFAULT 0,
	created TIMESTAMP NOT NULL,
	updated TIMESTAMP NOT NULL
)`

const mysqlSchema = `CREATE TABLE IF NOT EXISTS user_states (
	seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	user_id VARCHAR(191) NOT NULL UNIQUE,
	points BIGINT NOT NULL DEFAULT 0,
	level VARCHAR(32) NOT NULL,
	achievements TEXT NOT NULL,
	progress TEXT NOT NULL,
	leaderboard_rank INT NOT NULL DEFAULT 0,
	badge VARCHAR(16) NOT NULL DEFAULT '',
	version BIGINT NOT NULL DEFAULT 0,
	created DATETIME(6) NOT NULL,
	updated DATETIME(6) NOT NULL
)`

// Migrate creates the user_states table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.driver == DriverMySQL {
		schema = mysqlSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate user_states: %w", err)
	}
	return nil
}

const selectColumns = `user_id, points, level, achievements, progress, leaderboard_rank, badge, version, created, updated`

type stateRow struct {
	UserID       string    `db:"user_id"`
	Points       int64     `db:"points"`
	Level        string    `db:"level"`
	Achievements []byte    `db:"achievements"`
	Progress     []byte    `db:"progress"`
	Rank         int       `db:"leaderboard_rank"`
	Badge        string    `db:"badge"`
	Version      int64     `db:"version"`
	Created      time.Time `db:"created"`
	Updated      time.Time `db:"updated"`
}

func (r stateRow) toState() (core.UserState, error) {
	st := core.UserState{
		UserID:  core.UserID(r.UserID),
		Points:  r.Points,
		Level:   core.Level(r.Level),
		Rank:    r.Rank,
		Badge:   core.Badge(r.Badge),
		Version: r.Version,
		Created: r.Created.UTC(),
		Updated: r.Updated.UTC(),
	}
	if len(r.Achievements) > 0 {
		if err := json.Unmarshal(r.Achievements, &st.Achievements); err != nil {
			return core.UserState{}, fmt.Errorf("decode achievements for %s: %w", r.UserID, err)
		}
	}
	if len(r.Progress) > 0 {
		if err := json.Unmarshal(r.Progress, &st.Progress); err != nil {
			return core.UserState{}, fmt.Errorf("decode progress for %s: %w", r.UserID, err)
		}
	}
	return st, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetState returns the stored state or a fresh one for unknown users.
func (s *Store) GetState(ctx context.Context, user core.UserID) (core.UserState, error) {
	var row stateRow
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM user_states WHERE user_id = ?`)
	err := s.db.GetContext(ctx, &row, query, string(user))
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewUserState(user, time.Now().UTC()), nil
	}
	if err != nil {
		return core.UserState{}, fmt.Errorf("get state: %w", err)
	}
	return row.toState()
}

var errRetry = errors.New("concurrent write")

// UpdateState locks the user's row, applies fn and writes the result back
// guarded by the previous version. Lost races are retried.
func (s *Store) UpdateState(ctx context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	for i := 0; i < maxRetries; i++ {
		st, err := s.updateOnce(ctx, user, fn)
		if errors.Is(err, errRetry) {
			continue
		}
		return st, err
	}
	return core.UserState{}, core.ErrConflict
}

func (s *Store) updateOnce(ctx context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.UserState{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row stateRow
	query := tx.Rebind(`SELECT ` + selectColumns + ` FROM user_states WHERE user_id = ? FOR UPDATE`)
	err = tx.GetContext(ctx, &row, query, string(user))
	exists := true
	var state core.UserState
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
		state = core.NewUserState(user, time.Now().UTC())
	case err != nil:
		return core.UserState{}, fmt.Errorf("select state: %w", err)
	default:
		if state, err = row.toState(); err != nil {
			return core.UserState{}, err
		}
	}

	previous := state.Version
	if err := fn(&state); err != nil {
		return core.UserState{}, err
	}
	state.UserID = user
	state.Version = previous + 1
	state.Updated = time.Now().UTC()

	achievements, err := encodeJSON(state.Achievements)
	if err != nil {
		return core.UserState{}, err
	}
	progress, err := encodeJSON(state.Progress)
	if err != nil {
		return core.UserState{}, err
	}

	if !exists {
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO user_states
			(user_id, points, level, achievements, progress, leaderboard_rank, badge, version, created, updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			string(user), state.Points, string(state.Level), achievements, progress,
			state.Rank, string(state.Badge), state.Version, state.Created, state.Updated)
		if isDuplicateKey(err) {
			return core.UserState{}, errRetry
		}
		if err != nil {
			return core.UserState{}, fmt.Errorf("insert state: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE user_states
			SET points = ?, level = ?, achievements = ?, progress = ?, version = ?, updated = ?
			WHERE user_id = ? AND version = ?`),
			state.Points, string(state.Level), achievements, progress, state.Version, state.Updated,
			string(user), previous)
		if err != nil {
			return core.UserState{}, fmt.Errorf("update state: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return core.UserState{}, errRetry
		}
	}

	if err := tx.Commit(); err != nil {
		return core.UserState{}, fmt.Errorf("commit: %w", err)
	}
	return state, nil
}

// isDuplicateKey reports a unique violation from either supported driver.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// ListStates returns every user ordered by first insertion.
func (s *Store) ListStates(ctx context.Context) ([]core.UserState, error) {
	var rows []stateRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+selectColumns+` FROM user_states ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	out := make([]core.UserState, 0, len(rows))
	for _, r := range rows {
		st, err := r.toState()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// ApplyStandings writes rank and badge for all users in one transaction.
func (s *Store) ApplyStandings(ctx context.Context, standings []core.Standing) error {
	if len(standings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind(`UPDATE user_states SET leaderboard_rank = ?, badge = ? WHERE user_id = ?`)
	for _, st := range standings {
		if _, err := tx.ExecContext(ctx, query, st.Rank, string(st.Badge), string(st.UserID)); err != nil {
			return fmt.Errorf("apply standing for %s: %w", st.UserID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteState(ctx context.Context, user core.UserID) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM user_states WHERE user_id = ?`), string(user))
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

var _ interface {
	GetState(context.Context, core.UserID) (core.UserState, error)
	UpdateState(context.Context, core.UserID, func(*core.UserState) error) (core.UserState, error)
	ListStates(context.Context) ([]core.UserState, error)
	ApplyStandings(context.Context, []core.Standing) error
	DeleteState(context.Context, core.UserID) error
} = (*Store)(nil)
