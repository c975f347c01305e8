// Package persistence defines the repository interfaces C2 exposes to the
// rest of the system. Every mutation in the system flows through one of
// these; exactly one writer is pinned per table (annotated per method
// below).
package persistence

import (
	"context"
	"time"

	"github.com/pulseintel/solpulse/internal/types"
)

// TimeRange bounds a time-windowed query.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// TokenRepo persists dashboard tokens (table `token`). Writer: dashboard
// sync only.
type TokenRepo interface {
	Upsert(ctx context.Context, t types.Token) error
	Get(ctx context.Context, address string) (*types.Token, error)
	List(ctx context.Context, sortBy, order, search string, page, limit int) ([]types.Token, int, error)
}

// PulseTokenRepo persists pulse_token rows. Writers: C5 (pulse sync) and
// C10's GetToken, which upserts a feed fallback hit.
type PulseTokenRepo interface {
	// UpsertBatch is the conflict key (address) idempotent upsert used by
	// the classify+persist phase of the pulse sync tick.
	UpsertBatch(ctx context.Context, tokens []types.PulseToken) error
	Get(ctx context.Context, address string) (*types.PulseToken, error)
	ListByCategory(ctx context.Context, category types.Category, limit int) ([]types.PulseToken, error)
	// ExpireNew/ExpireGraduating/ExpireGraduated implement the stale-row
	// expiry policy and return the number of rows removed.
	ExpireNew(ctx context.Context, olderThan time.Duration) (int64, error)
	ExpireGraduating(ctx context.Context, olderThan time.Duration) (int64, error)
	ExpireGraduated(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SwapRepo persists token_swap rows. Writers: C4 (push ingester) and C6
// (swap sync); both rely on the (token_address, tx_hash) unique
// constraint and `ON CONFLICT DO NOTHING`.
type SwapRepo interface {
	InsertOne(ctx context.Context, s types.TokenSwap) (inserted bool, err error)
	InsertBatch(ctx context.Context, swaps []types.TokenSwap) (inserted int, err error)
	ListByToken(ctx context.Context, address string, limit int) ([]types.TokenSwap, error)
	ListByTokenAsc(ctx context.Context, address string, limit int) ([]types.TokenSwap, error)
	SumValueSince(ctx context.Context, address string, since time.Time) (float64, error)
	DeleteByToken(ctx context.Context, address string, batchLimit int) (int64, error)
}

// SyncStatusRepo persists token_sync_status rows. Writers: C6 (upserts)
// and C5's orphan cleanup (deletes).
type SyncStatusRepo interface {
	Get(ctx context.Context, address string) (*types.TokenSyncStatus, error)
	Upsert(ctx context.Context, s types.TokenSyncStatus) error
	Delete(ctx context.Context, address string) error
	// UnsyncedAddresses returns pulse_token addresses with no sync_status
	// row, or one with swaps_synced=false, ordered by descending market
	// cap, used by C5's historical-backfill kick.
	UnsyncedAddresses(ctx context.Context, limit int) ([]string, error)
	// SyncedAddresses returns addresses with swaps_synced=true, used by
	// C5's incremental-tail kick.
	SyncedAddresses(ctx context.Context, limit int) ([]string, error)
	// OrphanedAddresses returns synced addresses with no corresponding
	// pulse_token row, batched to limit, used by C5's orphan cleanup.
	OrphanedAddresses(ctx context.Context, limit int) ([]string, error)
}

// CandleRepo persists candle_cache rows. Writer: C7 only.
type CandleRepo interface {
	// UpsertBatch writes candles keyed by (token_address, timeframe,
	// timestamp) in chunks.
	UpsertBatch(ctx context.Context, rows []types.CandleRow) error
	Range(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.CandleRow, error)
}

// DashboardSyncStatusRepo persists the single dashboard_sync_status row.
// Writer: dashboard sync only.
type DashboardSyncStatusRepo interface {
	Get(ctx context.Context) (*types.DashboardSyncStatus, error)
	Set(ctx context.Context, s types.DashboardSyncStatus) error
}

// Repository aggregates every C2 repository the rest of the system needs.
type Repository struct {
	Tokens        TokenRepo
	PulseTokens   PulseTokenRepo
	Swaps         SwapRepo
	SyncStatus    SyncStatusRepo
	Candles       CandleRepo
	DashboardSync DashboardSyncStatusRepo
}

// HealthCheck is the repository layer's health snapshot.
type HealthCheck struct {
	Healthy        bool
	Errors         []string
	ConnectionPool map[string]int
	LastCheck      time.Time
	ResponseTimeMS int64
}

// Health exposes DB connectivity/pool diagnostics.
type Health interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
