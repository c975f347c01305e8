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

type syncStatusRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSyncStatusRepo creates the token_sync_status repository. Writers:
// C6 (swap sync) upserts, C5's orphan cleanup deletes.
func NewSyncStatusRepo(db *sqlx.DB, timeout time.Duration) persistence.SyncStatusRepo {
	return &syncStatusRepo{db: db, timeout: timeout}
}

func (r *syncStatusRepo) Get(ctx context.Context, address string) (*types.TokenSyncStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var s types.TokenSyncStatus
	err := r.db.GetContext(ctx, &s, `SELECT * FROM token_sync_status WHERE token_address = $1`, address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token_sync_status get %s: %w", address, err)
	}
	return &s, nil
}

func (r *syncStatusRepo) Upsert(ctx context.Context, s types.TokenSyncStatus) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO token_sync_status (token_address, swaps_synced, oldest_swap_time,
		                                newest_swap_time, total_swaps, last_swap_sync)
		VALUES (:token_address, :swaps_synced, :oldest_swap_time,
		        :newest_swap_time, :total_swaps, now())
		ON CONFLICT (token_address) DO UPDATE SET
			swaps_synced = EXCLUDED.swaps_synced,
			oldest_swap_time = COALESCE(token_sync_status.oldest_swap_time, EXCLUDED.oldest_swap_time),
			newest_swap_time = EXCLUDED.newest_swap_time,
			total_swaps = EXCLUDED.total_swaps,
			last_swap_sync = now()`

	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("token_sync_status upsert %s: %w", s.TokenAddress, err)
	}
	return nil
}

func (r *syncStatusRepo) Delete(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM token_sync_status WHERE token_address = $1`, address); err != nil {
		return fmt.Errorf("token_sync_status delete %s: %w", address, err)
	}
	return nil
}

// UnsyncedAddresses returns pulse_token addresses that have never had a
// historical backfill (the K_init kick), ranked by market cap
// so the highest-value tokens get synced first.
func (r *syncStatusRepo) UnsyncedAddresses(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 5
	}

	const query = `
		SELECT pt.address FROM pulse_token pt
		LEFT JOIN token_sync_status s ON s.token_address = pt.address
		WHERE s.token_address IS NULL OR s.swaps_synced = false
		ORDER BY pt.market_cap DESC NULLS LAST
		LIMIT $1`

	var out []string
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("token_sync_status unsynced: %w", err)
	}
	return out, nil
}

// SyncedAddresses returns addresses with a completed historical backfill,
// used by C5's incremental-tail kick (K_tail).
func (r *syncStatusRepo) SyncedAddresses(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT pt.address FROM pulse_token pt
		JOIN token_sync_status s ON s.token_address = pt.address
		WHERE s.swaps_synced = true
		ORDER BY pt.market_cap DESC NULLS LAST
		LIMIT $1`

	var out []string
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("token_sync_status synced: %w", err)
	}
	return out, nil
}

// OrphanedAddresses returns addresses that finished a historical backfill
// but have since fallen out of pulse_token (expired or never classified
// again), the set C5's orphan cleanup deletes token_swap/token_sync_status
// rows for.
func (r *syncStatusRepo) OrphanedAddresses(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	const query = `
		SELECT s.token_address FROM token_sync_status s
		LEFT JOIN pulse_token pt ON pt.address = s.token_address
		WHERE s.swaps_synced = true AND pt.address IS NULL
		LIMIT $1`

	var out []string
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("token_sync_status orphaned: %w", err)
	}
	return out, nil
}
