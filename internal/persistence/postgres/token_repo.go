package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/types"
)

type tokenRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTokenRepo creates the dashboard-token repository. Single writer:
// dashboard sync.
func NewTokenRepo(db *sqlx.DB, timeout time.Duration) persistence.TokenRepo {
	return &tokenRepo{db: db, timeout: timeout}
}

func (r *tokenRepo) Upsert(ctx context.Context, t types.Token) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO token (address, symbol, name, decimals, logo_uri, price,
		                    price_change_24h, volume_24h, market_cap, liquidity,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			logo_uri = EXCLUDED.logo_uri,
			price = EXCLUDED.price,
			price_change_24h = EXCLUDED.price_change_24h,
			volume_24h = EXCLUDED.volume_24h,
			market_cap = EXCLUDED.market_cap,
			liquidity = EXCLUDED.liquidity,
			updated_at = now()`

	_, err := r.db.ExecContext(ctx, query, t.Address, t.Symbol, t.Name, t.Decimals,
		t.LogoURI, t.Price, t.PriceChange24h, t.Volume24h, t.MarketCap, t.Liquidity)
	if err != nil {
		return fmt.Errorf("token upsert %s: %w", t.Address, err)
	}
	return nil
}

func (r *tokenRepo) Get(ctx context.Context, address string) (*types.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var t types.Token
	err := r.db.GetContext(ctx, &t, `SELECT * FROM token WHERE address = $1`, address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token get %s: %w", address, err)
	}
	return &t, nil
}

var tokenSortColumns = map[string]bool{
	"symbol": true, "name": true, "price": true, "market_cap": true,
	"volume_24h": true, "liquidity": true, "created_at": true, "updated_at": true,
}

func (r *tokenRepo) List(ctx context.Context, sortBy, order, search string, page, limit int) ([]types.Token, int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !tokenSortColumns[sortBy] {
		sortBy = "market_cap"
	}
	if order != "asc" {
		order = "desc"
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}

	where := ""
	args := []interface{}{}
	if search != "" {
		where = "WHERE symbol ILIKE $1 OR name ILIKE $1 OR address ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	var total int
	countQuery := "SELECT count(*) FROM token " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("token count: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(
		"SELECT * FROM token %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		where, sortBy, strings.ToUpper(order), len(args)-1, len(args))

	var out []types.Token
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("token list: %w", err)
	}
	return out, total, nil
}
