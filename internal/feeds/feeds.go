// Package feeds defines the shared vocabulary the C1 upstream clients
// (Feed-M, Feed-P, Feed-D, Feed-B, Feed-G) speak to the rest of the
// system: the push-side event types C4 decodes, and the small interfaces
// C5/C6/C10 call through. Vendor-specific field names never leak past an
// adapter built on top of these.
package feeds

import (
	"context"
	"time"

	"github.com/pulseintel/solpulse/internal/types"
)

// NewTokenEvent is emitted by Feed-P when a launchpad mint is created.
type NewTokenEvent struct {
	Mint              string
	Symbol            string
	Name              string
	URI               string
	Creator           string
	InitialBuy        float64
	MarketCapSOL      float64
	VSolInBondingCurve float64
	Signature         string
	Timestamp         time.Time
}

// TradeEvent is emitted by Feed-P for every buy/sell against a tracked mint.
type TradeEvent struct {
	Mint               string
	Type               types.SwapSide
	TokenAmount        float64
	SolAmount          float64
	VSolInBondingCurve float64
	MarketCapSOL       float64
	Trader             string
	Signature          string
	Timestamp          time.Time
}

// MigrationEvent is emitted by Feed-P when a mint graduates off the
// bonding curve into a liquidity pool.
type MigrationEvent struct {
	Mint      string
	Pool      string
	Signature string
	Timestamp time.Time
}

// PushHandler receives decoded Feed-P events. Implemented by C4.
type PushHandler interface {
	OnNewToken(ev NewTokenEvent)
	OnTrade(ev TradeEvent)
	OnMigration(ev MigrationEvent)
}

// PushClient is Feed-P: a push subscriber with its own reconnect state
// machine. Run blocks, replaying subscriptions on every reconnect, until
// ctx is cancelled or the backoff cap is hit.
type PushClient interface {
	Run(ctx context.Context, handler PushHandler) error
	SubscribeTokenTrades(mint string) error
	UnsubscribeTokenTrades(mint string) error
	State() string
}

// HolderStats is Feed-M's holder summary for a mint.
type HolderStats struct {
	HolderCount int64
	TopHolders  []Holder
}

type Holder struct {
	Address    string
	Amount     float64
	PercentOf  float64
}

// Swap is one cursor-paged historical trade as reported by Feed-M, prior
// to canonicalization into types.TokenSwap.
type Swap struct {
	TxHash        string
	Timestamp     time.Time
	Type          types.SwapSide
	WalletAddress string
	TokenAmount   float64
	SolAmount     float64
	PriceUSD      float64
	UsdAmount     float64
	TotalValueUSD float64
}

// MetadataClient is Feed-M: pull metadata/OHLCV/swaps/holders plus the
// pulse category lists.
type MetadataClient interface {
	GetPrice(ctx context.Context, mint string) (float64, error)
	GetMetadata(ctx context.Context, mint string) (*types.PulseToken, error)
	GetPairs(ctx context.Context, mint string) ([]string, error)
	GetOHLCVByPair(ctx context.Context, pair string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error)
	// GetSwaps cursor-pages historical swaps DESC by time; cursor is
	// opaque and returned empty once exhausted.
	GetSwaps(ctx context.Context, mint, cursor string, pageSize int) (swaps []Swap, nextCursor string, err error)
	GetNewList(ctx context.Context, limit int) ([]types.PulseToken, error)
	GetGraduatingList(ctx context.Context, limit int) ([]types.PulseToken, error)
	GetGraduatedList(ctx context.Context, limit int) ([]types.PulseToken, error)
	GetBondingStatus(ctx context.Context, mint string) (progress float64, migrated bool, err error)
	GetHolders(ctx context.Context, mint string) (*HolderStats, error)
}

// DexClient is Feed-D: pair discovery and price lookup by pair/search.
type DexClient interface {
	GetPairsByToken(ctx context.Context, address string) ([]string, error)
	Search(ctx context.Context, query string) ([]types.TokenLite, error)
}

// DashboardClient is Feed-B: dashboard-token overview, OHLCV, multi-price
// and trending.
type DashboardClient interface {
	TokenOverview(ctx context.Context, address string) (*types.TokenLite, error)
	OHLCV(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error)
	MultiPrice(ctx context.Context, addresses []string) (map[string]float64, error)
	Trending(ctx context.Context, limit int) ([]types.TokenLite, error)
}

// SupplyClient is Feed-G: circulating/total supply by coin id.
type SupplyClient interface {
	Supply(ctx context.Context, coinID string) (circulating, total float64, err error)
}
