package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/types"
)

type swapRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSwapRepo creates the token_swap repository. Writers: C4 (push
// ingester, one row at a time) and C6 (swap sync, batch backfill); both
// rely on the (token_address, tx_hash) unique constraint so concurrent
// writers never double-insert the same trade.
func NewSwapRepo(db *sqlx.DB, timeout time.Duration) persistence.SwapRepo {
	return &swapRepo{db: db, timeout: timeout}
}

const insertSwapQuery = `
	INSERT INTO token_swap (token_address, tx_hash, timestamp, type, wallet_address,
	                         token_amount, sol_amount, price_usd, total_value_usd, created_at)
	VALUES (:token_address, :tx_hash, :timestamp, :type, :wallet_address,
	        :token_amount, :sol_amount, :price_usd, :total_value_usd, now())
	ON CONFLICT (token_address, tx_hash) DO NOTHING`

func (r *swapRepo) InsertOne(ctx context.Context, s types.TokenSwap) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, insertSwapQuery, s)
	if err != nil {
		return false, fmt.Errorf("token_swap insert %s/%s: %w", s.TokenAddress, s.TxHash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("token_swap rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *swapRepo) InsertBatch(ctx context.Context, swaps []types.TokenSwap) (int, error) {
	if len(swaps) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("token_swap batch begin: %w", err)
	}
	defer tx.Rollback()

	var inserted int
	for _, s := range swaps {
		res, err := tx.NamedExecContext(ctx, insertSwapQuery, s)
		if err != nil {
			return 0, fmt.Errorf("token_swap batch insert %s/%s: %w", s.TokenAddress, s.TxHash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("token_swap rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("token_swap batch commit: %w", err)
	}
	return inserted, nil
}

func (r *swapRepo) ListByToken(ctx context.Context, address string, limit int) ([]types.TokenSwap, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var out []types.TokenSwap
	const query = `
		SELECT * FROM token_swap WHERE token_address = $1
		ORDER BY timestamp DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &out, query, address, limit); err != nil {
		return nil, fmt.Errorf("token_swap list %s: %w", address, err)
	}
	return out, nil
}

// ListByTokenAsc returns swaps oldest-first, used by C6/C8 to build
// candles off the raw trade tape.
func (r *swapRepo) ListByTokenAsc(ctx context.Context, address string, limit int) ([]types.TokenSwap, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	var out []types.TokenSwap
	const query = `
		SELECT * FROM token_swap WHERE token_address = $1
		ORDER BY timestamp ASC LIMIT $2`
	if err := r.db.SelectContext(ctx, &out, query, address, limit); err != nil {
		return nil, fmt.Errorf("token_swap list asc %s: %w", address, err)
	}
	return out, nil
}

func (r *swapRepo) SumValueSince(ctx context.Context, address string, since time.Time) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var total float64
	const query = `
		SELECT COALESCE(SUM(total_value_usd), 0) FROM token_swap
		WHERE token_address = $1 AND timestamp >= $2`
	if err := r.db.GetContext(ctx, &total, query, address, since); err != nil {
		return 0, fmt.Errorf("token_swap sum %s: %w", address, err)
	}
	return total, nil
}

// DeleteByToken removes a token's swap rows in batches of batchLimit, used
// by C5's orphan cleanup so a single sweep never holds a long-running
// delete lock.
func (r *swapRepo) DeleteByToken(ctx context.Context, address string, batchLimit int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if batchLimit <= 0 {
		batchLimit = 1000
	}

	const query = `
		DELETE FROM token_swap WHERE ctid IN (
			SELECT ctid FROM token_swap WHERE token_address = $1 LIMIT $2
		)`
	var total int64
	for {
		res, err := r.db.ExecContext(ctx, query, address, batchLimit)
		if err != nil {
			return total, fmt.Errorf("token_swap delete %s: %w", address, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("token_swap rows affected: %w", err)
		}
		total += n
		if n < int64(batchLimit) {
			return total, nil
		}
	}
}
