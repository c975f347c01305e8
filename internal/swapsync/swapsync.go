// Package swapsync is C6: historical backfill and incremental tail sync
// of token_swap rows from Feed-M, plus the DB-backed OHLCV read path
// pulse tokens use. C4 (push ingester) and C6 share token_swap's
// (token_address, tx_hash) unique constraint, so races between a push
// trade and a backfill landing the same row are resolved by the
// database, not here.
package swapsync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pulseintel/solpulse/internal/aggregate"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/solprice"
	"github.com/pulseintel/solpulse/internal/types"
)

const (
	maxHistoricalPages = 200
	historicalPageSize = 100
	tailPageSize       = 100
	ohlcvReadMultiple  = 2
	defaultOHLCVBound  = 200
)

// Engine is C6.
type Engine struct {
	metadata feeds.MetadataClient
	swaps    persistence.SwapRepo
	status   persistence.SyncStatusRepo
	sol      *solprice.Service
	log      zerolog.Logger

	sf singleflight.Group
}

func New(metadata feeds.MetadataClient, swaps persistence.SwapRepo, status persistence.SyncStatusRepo, sol *solprice.Service, log zerolog.Logger) *Engine {
	return &Engine{
		metadata: metadata,
		swaps:    swaps,
		status:   status,
		sol:      sol,
		log:      log.With().Str("component", "swapsync").Logger(),
	}
}

// KickHistorical schedules SyncHistorical in the background, for C5's
// swap-sync kick; scheduling never blocks and errors are only logged.
func (e *Engine) KickHistorical(address string) {
	go func() {
		if err := e.SyncHistorical(context.Background(), address); err != nil {
			e.log.Warn().Err(err).Str("address", address).Msg("historical backfill failed")
		}
	}()
}

// KickTail schedules SyncNew in the background, for C5's incremental-tail kick.
func (e *Engine) KickTail(address string) {
	go func() {
		if err := e.SyncNew(context.Background(), address); err != nil {
			e.log.Warn().Err(err).Str("address", address).Msg("incremental tail sync failed")
		}
	}()
}

// SyncHistorical backfills every swap Feed-M reports for address. Calls
// for the same address in flight share one underlying run and its
// result, satisfying the per-address single-flight guard.
func (e *Engine) SyncHistorical(ctx context.Context, address string) error {
	_, err, _ := e.sf.Do("hist:"+address, func() (interface{}, error) {
		return nil, e.syncHistorical(ctx, address)
	})
	return err
}

func (e *Engine) syncHistorical(ctx context.Context, address string) error {
	status, err := e.status.Get(ctx, address)
	if err != nil {
		return fmt.Errorf("swapsync: status lookup %s: %w", address, err)
	}
	if status != nil && status.SwapsSynced {
		return nil
	}

	var (
		cursor         string
		oldest, newest *time.Time
		total          int64
	)

	for page := 0; page < maxHistoricalPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, next, err := e.metadata.GetSwaps(ctx, address, cursor, historicalPageSize)
		if err != nil {
			return fmt.Errorf("swapsync: fetch page %d for %s: %w", page, address, err)
		}

		rows := e.parse(address, raw)
		if len(rows) > 0 {
			if _, err := e.swaps.InsertBatch(ctx, rows); err != nil {
				e.log.Warn().Err(err).Str("address", address).Int("page", page).Msg("historical batch insert failed")
			} else {
				total += int64(len(rows))
				for _, r := range rows {
					ts := r.Timestamp
					if oldest == nil || ts.Before(*oldest) {
						oldest = &ts
					}
					if newest == nil || ts.After(*newest) {
						newest = &ts
					}
				}
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	return e.status.Upsert(ctx, types.TokenSyncStatus{
		TokenAddress: address,
		SwapsSynced:  true,
		OldestSwap:   oldest,
		NewestSwap:   newest,
		TotalSwaps:   total,
	})
}

// SyncNew fetches the most recent swaps for an already-synced address and
// appends any not yet seen. Addresses never historically synced delegate
// to SyncHistorical instead.
func (e *Engine) SyncNew(ctx context.Context, address string) error {
	_, err, _ := e.sf.Do("tail:"+address, func() (interface{}, error) {
		return nil, e.syncNew(ctx, address)
	})
	return err
}

func (e *Engine) syncNew(ctx context.Context, address string) error {
	status, err := e.status.Get(ctx, address)
	if err != nil {
		return fmt.Errorf("swapsync: status lookup %s: %w", address, err)
	}
	if status == nil || !status.SwapsSynced {
		return e.syncHistorical(ctx, address)
	}

	raw, _, err := e.metadata.GetSwaps(ctx, address, "", tailPageSize)
	if err != nil {
		return fmt.Errorf("swapsync: tail fetch %s: %w", address, err)
	}

	rows := e.parse(address, raw)
	if len(rows) == 0 {
		return nil
	}

	inserted, err := e.swaps.InsertBatch(ctx, rows)
	if err != nil {
		return fmt.Errorf("swapsync: tail insert %s: %w", address, err)
	}

	oldest, newest := status.OldestSwap, status.NewestSwap
	for _, r := range rows {
		ts := r.Timestamp
		if oldest == nil || ts.Before(*oldest) {
			oldest = &ts
		}
		if newest == nil || ts.After(*newest) {
			newest = &ts
		}
	}

	return e.status.Upsert(ctx, types.TokenSyncStatus{
		TokenAddress: address,
		SwapsSynced:  true,
		OldestSwap:   oldest,
		NewestSwap:   newest,
		TotalSwaps:   status.TotalSwaps + int64(inserted),
	})
}

// parse canonicalizes raw Feed-M swaps into persisted rows, dropping any
// whose price can't be derived by any of the four methods.
func (e *Engine) parse(address string, raw []feeds.Swap) []types.TokenSwap {
	out := make([]types.TokenSwap, 0, len(raw))
	solPrice := e.sol.GetPriceSync()

	for _, s := range raw {
		if s.TokenAmount == 0 {
			continue
		}
		price := derivePrice(s, solPrice)
		if price <= 0 {
			continue
		}

		totalValue := s.TotalValueUSD
		if totalValue <= 0 {
			totalValue = price * s.TokenAmount
		}

		out = append(out, types.TokenSwap{
			TokenAddress:  address,
			TxHash:        s.TxHash,
			Timestamp:     s.Timestamp,
			Type:          s.Type,
			WalletAddress: s.WalletAddress,
			TokenAmount:   s.TokenAmount,
			SolAmount:     s.SolAmount,
			PriceUSD:      price,
			TotalValueUSD: totalValue,
		})
	}
	return out
}

// OHLCV is the single DB-backed OHLCV source for pulse tokens: read
// ASC-ordered swaps, bucket and gap-fill via C8, return at most
// maxCandles.
func (e *Engine) OHLCV(ctx context.Context, address string, intervalMs int64, maxCandles int) ([]types.OHLCV, error) {
	bound := maxCandles * ohlcvReadMultiple
	if bound <= 0 {
		bound = defaultOHLCVBound
	}

	rows, err := e.swaps.ListByTokenAsc(ctx, address, bound)
	if err != nil {
		return nil, fmt.Errorf("swapsync: ohlcv read %s: %w", address, err)
	}
	return aggregate.BuildCandlesFromSwaps(rows, intervalMs, maxCandles), nil
}
