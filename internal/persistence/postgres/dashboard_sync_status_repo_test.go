package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseintel/solpulse/internal/types"
)

func newMockDashboardSyncStatusRepo(t *testing.T) (*dashboardSyncStatusRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "postgres")
	repo := &dashboardSyncStatusRepo{db: sqlxDB, timeout: 5 * time.Second}
	return repo, mock, func() { db.Close() }
}

func TestDashboardSyncStatusRepo_GetNoRows(t *testing.T) {
	repo, mock, closeDB := newMockDashboardSyncStatusRepo(t)
	defer closeDB()

	mock.ExpectQuery("SELECT last_run_at, last_error, tokens_tracked FROM dashboard_sync_status").
		WillReturnRows(sqlmock.NewRows([]string{"last_run_at", "last_error", "tokens_tracked"}))

	got, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardSyncStatusRepo_GetFound(t *testing.T) {
	repo, mock, closeDB := newMockDashboardSyncStatusRepo(t)
	defer closeDB()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"last_run_at", "last_error", "tokens_tracked"}).
		AddRow(now, "", 42)
	mock.ExpectQuery("SELECT last_run_at, last_error, tokens_tracked FROM dashboard_sync_status").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.TokensTracked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardSyncStatusRepo_Set(t *testing.T) {
	repo, mock, closeDB := newMockDashboardSyncStatusRepo(t)
	defer closeDB()

	mock.ExpectExec("INSERT INTO dashboard_sync_status").
		WithArgs("", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Set(context.Background(), types.DashboardSyncStatus{TokensTracked: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
