package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/types"
)

type dashboardSyncStatusRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDashboardSyncStatusRepo creates the single-row dashboard_sync_status
// repository. Single writer: the dashboard sync loop.
func NewDashboardSyncStatusRepo(db *sqlx.DB, timeout time.Duration) persistence.DashboardSyncStatusRepo {
	return &dashboardSyncStatusRepo{db: db, timeout: timeout}
}

func (r *dashboardSyncStatusRepo) Get(ctx context.Context) (*types.DashboardSyncStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var s types.DashboardSyncStatus
	err := r.db.GetContext(ctx, &s, `SELECT last_run_at, last_error, tokens_tracked FROM dashboard_sync_status WHERE id = true`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dashboard_sync_status get: %w", err)
	}
	return &s, nil
}

func (r *dashboardSyncStatusRepo) Set(ctx context.Context, s types.DashboardSyncStatus) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO dashboard_sync_status (id, last_run_at, last_error, tokens_tracked)
		VALUES (true, now(), $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			last_run_at = now(),
			last_error = EXCLUDED.last_error,
			tokens_tracked = EXCLUDED.tokens_tracked`

	if _, err := r.db.ExecContext(ctx, query, s.LastError, s.TokensTracked); err != nil {
		return fmt.Errorf("dashboard_sync_status set: %w", err)
	}
	return nil
}
