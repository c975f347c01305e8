// Package types holds the canonical internal representations shared across
// upstream adapters, the sync engines, the cache layers and the read
// services. Vendor-specific field names never leak past an adapter
// boundary; everything downstream of internal/feeds deals only in these
// shapes.
package types

import "time"

// Category is the pulse lifecycle state of a launchpad token.
type Category string

const (
	CategoryNew        Category = "NEW"
	CategoryGraduating Category = "GRADUATING"
	CategoryGraduated  Category = "GRADUATED"
)

// Source identifies which upstream feed a record was resolved from, used
// by read services that fall back across feeds (GetToken) or that need to
// report provenance to clients (PulseTokenOut.Source).
type Source string

const (
	SourceMetadata  Source = "metadata"  // Feed-M
	SourceDex       Source = "dex"       // Feed-D
	SourceDashboard Source = "dashboard" // Feed-B
	SourcePush      Source = "push"      // Feed-P (live ingester)
	SourceCache     Source = "cache"
)

// SwapSide is the direction of a trade.
type SwapSide string

const (
	SideBuy  SwapSide = "buy"
	SideSell SwapSide = "sell"
)

// Timeframe is drawn from a fixed vocabulary; CandleCache rows and OHLCV
// requests are always keyed by one of these.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h Timeframe = "1h"
	TF4h Timeframe = "4h"
	TF1d Timeframe = "1d"
	TF1w Timeframe = "1w"
	TF1M Timeframe = "1M"
)

// IntervalMS returns the bucket width for fixed-width timeframes. 1w/1M are
// calendar buckets, not fixed-width, and return 0 — callers must special
// case them (see internal/aggregate).
func (tf Timeframe) IntervalMS() int64 {
	switch tf {
	case TF1m:
		return int64(time.Minute / time.Millisecond)
	case TF5m:
		return int64(5 * time.Minute / time.Millisecond)
	case TF15m:
		return int64(15 * time.Minute / time.Millisecond)
	case TF1h:
		return int64(time.Hour / time.Millisecond)
	case TF4h:
		return int64(4 * time.Hour / time.Millisecond)
	case TF1d:
		return int64(24 * time.Hour / time.Millisecond)
	default:
		return 0
	}
}

// OHLCV is one open/high/low/close/volume bucket.
type OHLCV struct {
	Timestamp int64   `json:"timestamp"` // ms, bucket start
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Valid reports whether the candle satisfies the ordering invariant
// low <= min(open,close) <= max(open,close) <= high and volume >= 0.
func (c OHLCV) Valid() bool {
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	return c.Low <= lo && hi <= c.High && c.Volume >= 0
}

// TokenLite is the dashboard-token market snapshot shared by TokenLite and
// PulseTokenOut over the wire.
type TokenLite struct {
	Address         string  `json:"address"`
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Decimals        int     `json:"decimals"`
	LogoURI         string  `json:"logo_uri,omitempty"`
	Price           float64 `json:"price"`
	PriceChange24h  float64 `json:"price_change_24h"`
	Volume24h       float64 `json:"volume_24h"`
	MarketCap       float64 `json:"market_cap"`
	Liquidity       float64 `json:"liquidity"`
}

// PulseTokenOut is the wire representation of a pulse_token row.
type PulseTokenOut struct {
	TokenLite
	Description     string   `json:"description,omitempty"`
	TxCount         int64    `json:"tx_count"`
	ReplyCount      int64    `json:"reply_count"`
	CreatedAt       int64    `json:"created_at"` // ms
	Twitter         string   `json:"twitter,omitempty"`
	Telegram        string   `json:"telegram,omitempty"`
	Website         string   `json:"website,omitempty"`
	BondingProgress *float64 `json:"bonding_progress,omitempty"`
	GraduatedAt     *int64   `json:"graduated_at,omitempty"` // ms
	Complete        bool     `json:"complete,omitempty"`
	Source          Source   `json:"source"`
	Category        Category `json:"category"`
}

// Trade is the wire representation of one token_swap row.
type Trade struct {
	TxHash         string   `json:"tx_hash"`
	Timestamp      int64    `json:"timestamp"` // ms
	Type           SwapSide `json:"type"`
	Wallet         string   `json:"wallet"`
	TokenAmount    float64  `json:"token_amount"`
	TokenAmountUSD float64  `json:"token_amount_usd"`
	TokenSymbol    string   `json:"token_symbol"`
	OtherAmount    float64  `json:"other_amount"`
	OtherSymbol    string   `json:"other_symbol"`
	OtherAmountUSD float64  `json:"other_amount_usd"`
	PriceUSD       float64  `json:"price_usd"`
	TotalValueUSD  float64  `json:"total_value_usd"`
}

// Token is the persisted dashboard token row (table `token`).
type Token struct {
	Address        string    `db:"address" json:"address"`
	Symbol         string    `db:"symbol" json:"symbol"`
	Name           string    `db:"name" json:"name"`
	Decimals       int       `db:"decimals" json:"decimals"`
	LogoURI        string    `db:"logo_uri" json:"logo_uri,omitempty"`
	Price          float64   `db:"price" json:"price"`
	PriceChange24h float64   `db:"price_change_24h" json:"price_change_24h"`
	Volume24h      float64   `db:"volume_24h" json:"volume_24h"`
	MarketCap      float64   `db:"market_cap" json:"market_cap"`
	Liquidity      float64   `db:"liquidity" json:"liquidity"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// PulseToken is the persisted pulse_token row.
type PulseToken struct {
	Address         string     `db:"address" json:"address"`
	Symbol          string     `db:"symbol" json:"symbol"`
	Name            string     `db:"name" json:"name"`
	Decimals        int        `db:"decimals" json:"decimals"`
	LogoURI         string     `db:"logo_uri" json:"logo_uri,omitempty"`
	Price           float64    `db:"price" json:"price"`
	PriceChange24h  float64    `db:"price_change_24h" json:"price_change_24h"`
	Volume24h       float64    `db:"volume_24h" json:"volume_24h"`
	MarketCap       float64    `db:"market_cap" json:"market_cap"`
	Liquidity       float64    `db:"liquidity" json:"liquidity"`
	Category        Category   `db:"category" json:"category"`
	BondingProgress *float64   `db:"bonding_progress" json:"bonding_progress,omitempty"`
	GraduatedAt     *time.Time `db:"graduated_at" json:"graduated_at,omitempty"`
	TokenCreatedAt  *time.Time `db:"token_created_at" json:"token_created_at,omitempty"`
	Twitter         string     `db:"twitter" json:"twitter,omitempty"`
	Telegram        string     `db:"telegram" json:"telegram,omitempty"`
	Website         string     `db:"website" json:"website,omitempty"`
	Description     string     `db:"description" json:"description,omitempty"`
	ReplyCount      int64      `db:"reply_count" json:"reply_count"`
	TxCount         int64      `db:"tx_count" json:"tx_count"`
	Source          Source     `db:"source" json:"source"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Out converts the persisted row into its wire shape.
func (p PulseToken) Out() PulseTokenOut {
	var graduatedAt *int64
	if p.GraduatedAt != nil {
		ms := p.GraduatedAt.UnixMilli()
		graduatedAt = &ms
	}
	createdAt := p.CreatedAt
	if p.TokenCreatedAt != nil {
		createdAt = *p.TokenCreatedAt
	}
	return PulseTokenOut{
		TokenLite: TokenLite{
			Address:        p.Address,
			Symbol:         p.Symbol,
			Name:           p.Name,
			Decimals:       p.Decimals,
			LogoURI:        p.LogoURI,
			Price:          p.Price,
			PriceChange24h: p.PriceChange24h,
			Volume24h:      p.Volume24h,
			MarketCap:      p.MarketCap,
			Liquidity:      p.Liquidity,
		},
		Description:     p.Description,
		TxCount:         p.TxCount,
		ReplyCount:      p.ReplyCount,
		CreatedAt:       createdAt.UnixMilli(),
		Twitter:         p.Twitter,
		Telegram:        p.Telegram,
		Website:         p.Website,
		BondingProgress: p.BondingProgress,
		GraduatedAt:     graduatedAt,
		Complete:        p.Category == CategoryGraduated,
		Source:          p.Source,
		Category:        p.Category,
	}
}

// TokenSwap is the persisted token_swap row, unique on (TokenAddress, TxHash).
type TokenSwap struct {
	ID            int64     `db:"id" json:"id"`
	TokenAddress  string    `db:"token_address" json:"token_address"`
	TxHash        string    `db:"tx_hash" json:"tx_hash"`
	Timestamp     time.Time `db:"timestamp" json:"timestamp"`
	Type          SwapSide  `db:"type" json:"type"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	TokenAmount   float64   `db:"token_amount" json:"token_amount"`
	SolAmount     float64   `db:"sol_amount" json:"sol_amount"`
	PriceUSD      float64   `db:"price_usd" json:"price_usd"`
	TotalValueUSD float64   `db:"total_value_usd" json:"total_value_usd"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TokenSyncStatus is the persisted token_sync_status row, written by C6
// and deleted by C5's orphan cleanup.
type TokenSyncStatus struct {
	TokenAddress  string     `db:"token_address" json:"token_address"`
	SwapsSynced   bool       `db:"swaps_synced" json:"swaps_synced"`
	OldestSwap    *time.Time `db:"oldest_swap_time" json:"oldest_swap_time,omitempty"`
	NewestSwap    *time.Time `db:"newest_swap_time" json:"newest_swap_time,omitempty"`
	TotalSwaps    int64      `db:"total_swaps" json:"total_swaps"`
	LastSwapSync  time.Time  `db:"last_swap_sync" json:"last_swap_sync"`
}

// CandleRow is the persisted candle_cache row.
type CandleRow struct {
	TokenAddress string    `db:"token_address" json:"token_address"`
	Timeframe    Timeframe `db:"timeframe" json:"timeframe"`
	Timestamp    int64     `db:"timestamp" json:"timestamp"` // ms, bucket start
	Open         float64   `db:"open" json:"open"`
	High         float64   `db:"high" json:"high"`
	Low          float64   `db:"low" json:"low"`
	Close        float64   `db:"close" json:"close"`
	Volume       float64   `db:"volume" json:"volume"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (c CandleRow) OHLCV() OHLCV {
	return OHLCV{Timestamp: c.Timestamp, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
}

// DashboardSyncStatus is the single-row health snapshot the dashboard
// sync loop writes after every tick, the `token` table's counterpart to
// token_sync_status. Single writer: dashboard sync.
type DashboardSyncStatus struct {
	LastRunAt     time.Time `db:"last_run_at" json:"last_run_at"`
	LastError     string    `db:"last_error" json:"last_error,omitempty"`
	TokensTracked int64     `db:"tokens_tracked" json:"tokens_tracked"`
}
