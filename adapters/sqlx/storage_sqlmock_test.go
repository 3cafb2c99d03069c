package sqlx_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "mangrovewatch/adapters/sqlx"
	"mangrovewatch/core"
)

var stateColumns = []string{"user_id", "points", "level", "achievements", "progress", "leaderboard_rank", "badge", "version", "created", "updated"}

func newMockStore(t *testing.T, driver storage.Driver) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, string(driver)), driver)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

func TestSQLMock_UpdateState_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM user_states WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(stateColumns))
	mock.ExpectExec(`INSERT INTO user_states`).
		WithArgs("u1", int64(35), "Scout", sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "", int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	st, err := store.UpdateState(context.Background(), "u1", func(st *core.UserState) error {
		st.Points += 35
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(35), st.Points)
	assert.Equal(t, int64(1), st.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_UpdateState_VersionGuard(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	now := time.Now().UTC()
	row := func(points, version int64) *sqlmock.Rows {
		return sqlmock.NewRows(stateColumns).
			AddRow("u1", points, "Scout", `[]`, `{"total_reports":1}`, 0, "", version, now, now)
	}

	// first attempt loses the race
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM user_states`).WithArgs("u1").WillReturnRows(row(10, 3))
	mock.ExpectExec(`UPDATE user_states\s+SET points`).
		WithArgs(int64(20), "Scout", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(4), sqlmock.AnyArg(), "u1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM user_states`).WithArgs("u1").WillReturnRows(row(15, 4))
	mock.ExpectExec(`UPDATE user_states\s+SET points`).
		WithArgs(int64(25), "Scout", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5), sqlmock.AnyArg(), "u1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	st, err := store.UpdateState(context.Background(), "u1", func(st *core.UserState) error {
		st.Points += 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), st.Points)
	assert.Equal(t, int64(5), st.Version)
	assert.Equal(t, int64(1), st.Progress.TotalReports)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_UpdateState_DuplicateInsertRetries(t *testing.T) {
	for _, tc := range []struct {
		name   string
		driver storage.Driver
		dupErr error
	}{
		{"postgres", storage.DriverPostgres, &pq.Error{Code: "23505"}},
		{"mysql", storage.DriverMySQL, &mysql.MySQLError{Number: 1062}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, cleanup := newMockStore(t, tc.driver)
			defer cleanup()

			now := time.Now().UTC()
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT .* FROM user_states`).WillReturnRows(sqlmock.NewRows(stateColumns))
			mock.ExpectExec(`INSERT INTO user_states`).WillReturnError(tc.dupErr)
			mock.ExpectRollback()

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT .* FROM user_states`).
				WillReturnRows(sqlmock.NewRows(stateColumns).AddRow("u1", 5, "Scout", `[]`, `{}`, 0, "", 1, now, now))
			mock.ExpectExec(`UPDATE user_states`).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			st, err := store.UpdateState(context.Background(), "u1", func(st *core.UserState) error {
				st.Points += 5
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(10), st.Points)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLMock_UpdateState_FuncErrorRollsBack(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM user_states`).WillReturnRows(sqlmock.NewRows(stateColumns))
	mock.ExpectRollback()

	_, err := store.UpdateState(context.Background(), "u1", func(*core.UserState) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetState(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM user_states WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow(
			"u1", 150, "Guardian",
			`[{"id":"FIRST_REPORT","unlocked_at":"2026-01-02T03:04:05Z"}]`,
			`{"total_reports":3,"reports_with_photos":2,"unique_locations":["Kutch"]}`,
			2, "silver", 7, now, now))

	state, err := store.GetState(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), state.Points)
	assert.Equal(t, core.LevelGuardian, state.Level)
	assert.True(t, state.HasAchievement(core.AchievementFirstReport))
	assert.Equal(t, int64(3), state.Progress.TotalReports)
	assert.True(t, state.Progress.HasLocation("Kutch"))
	assert.Equal(t, 2, state.Rank)
	assert.Equal(t, core.BadgeSilver, state.Badge)
	assert.Equal(t, int64(7), state.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetState_Unknown(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverMySQL)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM user_states WHERE user_id = \?`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(stateColumns))

	state, err := store.GetState(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, core.UserID("ghost"), state.UserID)
	assert.Equal(t, core.LevelScout, state.Level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ListStates(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM user_states ORDER BY seq`).
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow("b", 10, "Scout", `[]`, `{}`, 0, "", 1, now, now).
			AddRow("a", 20, "Scout", `[]`, `{}`, 0, "", 1, now, now))

	states, err := store.ListStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, core.UserID("b"), states[0].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ApplyStandings(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE user_states SET leaderboard_rank = \$1, badge = \$2 WHERE user_id = \$3`).
		WithArgs(1, "gold", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE user_states SET leaderboard_rank`).
		WithArgs(2, "silver", "b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ApplyStandings(context.Background(), []core.Standing{
		{UserID: "a", Rank: 1, Badge: core.BadgeGold},
		{UserID: "b", Rank: 2, Badge: core.BadgeSilver},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_DeleteState(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM user_states`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM user_states`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteState(context.Background(), "u1"))
	assert.ErrorIs(t, store.DeleteState(context.Background(), "u1"), core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultConfig(t *testing.T) {
	pg := storage.DefaultConfig(storage.DriverPostgres)
	assert.Equal(t, storage.DriverPostgres, pg.Driver)
	assert.Contains(t, pg.DSN, "postgres://")

	my := storage.DefaultConfig(storage.DriverMySQL)
	assert.Contains(t, my.DSN, "parseTime=true")
	assert.True(t, my.AutoMigrate)
}
