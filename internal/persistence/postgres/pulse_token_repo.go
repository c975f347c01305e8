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

type pulseTokenRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPulseTokenRepo creates the pulse_token repository. Writers: C5
// (pulse sync engine) and C10's GetToken fallback-hit upsert. Conflict
// key is (address); exactly one category is
// assigned at a time.
func NewPulseTokenRepo(db *sqlx.DB, timeout time.Duration) persistence.PulseTokenRepo {
	return &pulseTokenRepo{db: db, timeout: timeout}
}

const upsertPulseTokenQuery = `
	INSERT INTO pulse_token (address, symbol, name, decimals, logo_uri, price,
	                          price_change_24h, volume_24h, market_cap, liquidity,
	                          category, bonding_progress, graduated_at, token_created_at,
	                          twitter, telegram, website, description, reply_count,
	                          tx_count, source, created_at, updated_at)
	VALUES (:address, :symbol, :name, :decimals, :logo_uri, :price,
	        :price_change_24h, :volume_24h, :market_cap, :liquidity,
	        :category, :bonding_progress, :graduated_at, :token_created_at,
	        :twitter, :telegram, :website, :description, :reply_count,
	        :tx_count, :source, now(), now())
	ON CONFLICT (address) DO UPDATE SET
		symbol = EXCLUDED.symbol,
		name = EXCLUDED.name,
		decimals = EXCLUDED.decimals,
		logo_uri = COALESCE(NULLIF(EXCLUDED.logo_uri, ''), pulse_token.logo_uri),
		price = EXCLUDED.price,
		price_change_24h = EXCLUDED.price_change_24h,
		volume_24h = EXCLUDED.volume_24h,
		market_cap = EXCLUDED.market_cap,
		liquidity = EXCLUDED.liquidity,
		category = EXCLUDED.category,
		bonding_progress = EXCLUDED.bonding_progress,
		-- graduated_at is stamped once and never cleared: it is set when
		-- first transitioning to GRADUATED and never overwritten after.
		graduated_at = COALESCE(pulse_token.graduated_at, EXCLUDED.graduated_at),
		token_created_at = COALESCE(pulse_token.token_created_at, EXCLUDED.token_created_at),
		twitter = EXCLUDED.twitter,
		telegram = EXCLUDED.telegram,
		website = EXCLUDED.website,
		description = EXCLUDED.description,
		reply_count = EXCLUDED.reply_count,
		tx_count = EXCLUDED.tx_count,
		source = EXCLUDED.source,
		updated_at = now()`

func (r *pulseTokenRepo) UpsertBatch(ctx context.Context, tokens []types.PulseToken) error {
	if len(tokens) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pulse_token upsert begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tokens {
		if t.Category == types.CategoryGraduated && t.GraduatedAt == nil {
			now := time.Now()
			t.GraduatedAt = &now
		}
		if _, err := tx.NamedExecContext(ctx, upsertPulseTokenQuery, t); err != nil {
			return fmt.Errorf("pulse_token upsert %s: %w", t.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pulse_token upsert commit: %w", err)
	}
	return nil
}

func (r *pulseTokenRepo) Get(ctx context.Context, address string) (*types.PulseToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var t types.PulseToken
	err := r.db.GetContext(ctx, &t, `SELECT * FROM pulse_token WHERE address = $1`, address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pulse_token get %s: %w", address, err)
	}
	return &t, nil
}

func (r *pulseTokenRepo) ListByCategory(ctx context.Context, category types.Category, limit int) ([]types.PulseToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	var orderBy string
	switch category {
	case types.CategoryGraduated:
		orderBy = "graduated_at DESC NULLS LAST"
	default:
		orderBy = "token_created_at DESC NULLS LAST"
	}

	var out []types.PulseToken
	query := fmt.Sprintf(`SELECT * FROM pulse_token WHERE category = $1 ORDER BY %s LIMIT $2`, orderBy)
	if err := r.db.SelectContext(ctx, &out, query, category, limit); err != nil {
		return nil, fmt.Errorf("pulse_token list %s: %w", category, err)
	}
	return out, nil
}

func (r *pulseTokenRepo) ExpireNew(ctx context.Context, olderThan time.Duration) (int64, error) {
	return r.expire(ctx, types.CategoryNew,
		`DELETE FROM pulse_token WHERE category = $1 AND COALESCE(token_created_at, created_at) < $2`,
		olderThan)
}

func (r *pulseTokenRepo) ExpireGraduating(ctx context.Context, olderThan time.Duration) (int64, error) {
	return r.expire(ctx, types.CategoryGraduating,
		`DELETE FROM pulse_token WHERE category = $1 AND updated_at < $2`,
		olderThan)
}

func (r *pulseTokenRepo) ExpireGraduated(ctx context.Context, olderThan time.Duration) (int64, error) {
	return r.expire(ctx, types.CategoryGraduated,
		`DELETE FROM pulse_token WHERE category = $1 AND graduated_at < $2`,
		olderThan)
}

func (r *pulseTokenRepo) expire(ctx context.Context, category types.Category, query string, olderThan time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cutoff := time.Now().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, query, category, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pulse_token expire %s: %w", category, err)
	}
	return res.RowsAffected()
}
