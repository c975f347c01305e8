package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/types"
)

type candleRepo struct {
	db        *sqlx.DB
	timeout   time.Duration
	chunkSize int
}

// NewCandleRepo creates the candle_cache repository. Single writer: C7.
// Rows are chunked in groups of 100 per upsert so a large backfill
// never opens one oversized transaction.
func NewCandleRepo(db *sqlx.DB, timeout time.Duration) persistence.CandleRepo {
	return &candleRepo{db: db, timeout: timeout, chunkSize: 100}
}

// Historical buckets are immutable once their window has fully elapsed;
// only the in-flight (most recent) bucket for a timeframe is ever
// overwritten in place, so the upsert simply replaces OHLCV values — C7
// is the only caller and never re-upserts a bucket it knows is closed.
const upsertCandleQuery = `
	INSERT INTO candle_cache (token_address, timeframe, timestamp, open, high, low, close,
	                           volume, updated_at)
	VALUES (:token_address, :timeframe, :timestamp, :open, :high, :low, :close,
	        :volume, now())
	ON CONFLICT (token_address, timeframe, timestamp) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		updated_at = now()`

func (r *candleRepo) UpsertBatch(ctx context.Context, rows []types.CandleRow) error {
	if len(rows) == 0 {
		return nil
	}

	for start := 0; start < len(rows); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.upsertChunk(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *candleRepo) upsertChunk(ctx context.Context, chunk []types.CandleRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("candle_cache upsert begin: %w", err)
	}
	defer tx.Rollback()

	for _, row := range chunk {
		if _, err := tx.NamedExecContext(ctx, upsertCandleQuery, row); err != nil {
			return fmt.Errorf("candle_cache upsert %s/%s/%d: %w", row.TokenAddress, row.Timeframe, row.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("candle_cache upsert commit: %w", err)
	}
	return nil
}

func (r *candleRepo) Range(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.CandleRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT * FROM candle_cache
		WHERE token_address = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp ASC`

	var out []types.CandleRow
	if err := r.db.SelectContext(ctx, &out, query, address, tf, from, to); err != nil {
		return nil, fmt.Errorf("candle_cache range %s/%s: %w", address, tf, err)
	}
	return out, nil
}
