// Package candlecache is C7: the candle cache for dashboard tokens,
// where upstream OHLCV is the source of truth and the cache only exists
// to avoid re-fetching immutable historical buckets on every read.
package candlecache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pulseintel/solpulse/internal/aggregate"
	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/telemetry/metrics"
	"github.com/pulseintel/solpulse/internal/types"
)

const upsertChunkSize = 100

// FetchFunc pulls candles for [from, to] from whichever upstream feed
// the caller is backing this cache with (Feed-D/Feed-B for dashboard
// tokens, Feed-M for daily candles backing weekly/monthly aggregation).
type FetchFunc func(ctx context.Context, from, to int64) ([]types.OHLCV, error)

// Engine is C7.
type Engine struct {
	candles       persistence.CandleRepo
	liveRefreshMS int64
}

func New(candles persistence.CandleRepo, liveRefreshMS int64) *Engine {
	return &Engine{candles: candles, liveRefreshMS: liveRefreshMS}
}

// IntervalMS maps a fixed timeframe to its bucket width. 1w/1M have no
// fixed width (UTC week/month boundaries vary) and are handled by
// GetWeeklyOrMonthly instead.
func IntervalMS(tf types.Timeframe) int64 {
	switch tf {
	case types.TF1m:
		return 60_000
	case types.TF5m:
		return 5 * 60_000
	case types.TF15m:
		return 15 * 60_000
	case types.TF1h:
		return 60 * 60_000
	case types.TF4h:
		return 4 * 60 * 60_000
	case types.TF1d:
		return 24 * 60 * 60_000
	default:
		return 0
	}
}

// GetCandles implements the get_candles policy tree for any
// fixed timeframe. fetch is only called when the cache is incomplete,
// missing older history, or the live bucket has gone stale.
func (e *Engine) GetCandles(ctx context.Context, address string, tf types.Timeframe, from, to int64, fetch FetchFunc) ([]types.CandleRow, error) {
	intervalMs := IntervalMS(tf)
	if intervalMs <= 0 {
		return nil, fmt.Errorf("candlecache: unsupported fixed timeframe %s", tf)
	}

	cached, err := e.candles.Range(ctx, address, tf, from, to)
	if err != nil {
		return nil, fmt.Errorf("candlecache: range read %s/%s: %w", address, tf, err)
	}

	expected := (to - from) / intervalMs
	if len(cached) == 0 || (expected > 0 && 2*int64(len(cached)) < expected) {
		metrics.CandleCacheMisses.WithLabelValues(string(tf)).Inc()
		return e.refetchFull(ctx, address, tf, from, to, fetch)
	}

	needsOlder := cached[0].Timestamp > from
	if needsOlder {
		metrics.CandleCacheMisses.WithLabelValues(string(tf)).Inc()
		return e.refetchFull(ctx, address, tf, from, to, fetch)
	}

	if e.isLiveStale(cached, intervalMs) {
		metrics.CandleCacheMisses.WithLabelValues(string(tf)).Inc()
		now := time.Now().UnixMilli()
		liveFrom := bucketStart(now, intervalMs) - intervalMs
		fresh, err := fetch(ctx, liveFrom, now)
		if err != nil {
			return nil, fmt.Errorf("candlecache: live refetch %s/%s: %w", address, tf, err)
		}
		if err := e.upsert(ctx, address, tf, fresh); err != nil {
			return nil, err
		}
		rows, err := e.candles.Range(ctx, address, tf, from, to)
		if err != nil {
			return nil, fmt.Errorf("candlecache: range read after live refetch %s/%s: %w", address, tf, err)
		}
		return rows, nil
	}

	metrics.CandleCacheHits.WithLabelValues(string(tf)).Inc()
	return cached, nil
}

// GetWeeklyOrMonthly consults the 1w/1M cache first; on miss it fetches
// daily candles for the window via fetchDaily, de-dupes by timestamp,
// and aggregates through C8. Aggregated candles are not written back to
// the cache — that is reserved for a dedicated population job this
// system doesn't run.
func (e *Engine) GetWeeklyOrMonthly(ctx context.Context, address string, tf types.Timeframe, from, to int64, fetchDaily FetchFunc) ([]types.OHLCV, error) {
	if tf != types.TF1w && tf != types.TF1M {
		return nil, fmt.Errorf("candlecache: %s is not a weekly/monthly timeframe", tf)
	}

	cached, err := e.candles.Range(ctx, address, tf, from, to)
	if err != nil {
		return nil, fmt.Errorf("candlecache: range read %s/%s: %w", address, tf, err)
	}
	if len(cached) > 0 {
		out := make([]types.OHLCV, 0, len(cached))
		for _, r := range cached {
			out = append(out, r.OHLCV())
		}
		return out, nil
	}

	daily, err := fetchDaily(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("candlecache: daily fetch for %s %s: %w", address, tf, err)
	}

	deduped := dedupeByTimestamp(daily)
	if tf == types.TF1w {
		return aggregate.AggregateWeekly(deduped), nil
	}
	return aggregate.AggregateMonthly(deduped), nil
}

// isLiveStale reports whether the bucket covering "now" is missing from
// cached entirely, or was last written more than liveRefreshMS ago.
// Historical buckets are immutable and never consulted here.
func (e *Engine) isLiveStale(cached []types.CandleRow, intervalMs int64) bool {
	liveBucket := bucketStart(time.Now().UnixMilli(), intervalMs)
	for i := len(cached) - 1; i >= 0; i-- {
		if cached[i].Timestamp == liveBucket {
			return time.Since(cached[i].UpdatedAt) > time.Duration(e.liveRefreshMS)*time.Millisecond
		}
		if cached[i].Timestamp < liveBucket {
			break
		}
	}
	return true
}

func (e *Engine) refetchFull(ctx context.Context, address string, tf types.Timeframe, from, to int64, fetch FetchFunc) ([]types.CandleRow, error) {
	fresh, err := fetch(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("candlecache: full refetch %s/%s: %w", address, tf, err)
	}
	if err := e.upsert(ctx, address, tf, fresh); err != nil {
		return nil, err
	}
	rows, err := e.candles.Range(ctx, address, tf, from, to)
	if err != nil {
		return nil, fmt.Errorf("candlecache: range read after full refetch %s/%s: %w", address, tf, err)
	}
	return rows, nil
}

func (e *Engine) upsert(ctx context.Context, address string, tf types.Timeframe, fresh []types.OHLCV) error {
	if len(fresh) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]types.CandleRow, 0, len(fresh))
	for _, c := range fresh {
		rows = append(rows, types.CandleRow{
			TokenAddress: address,
			Timeframe:    tf,
			Timestamp:    c.Timestamp,
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        c.Close,
			Volume:       c.Volume,
			UpdatedAt:    now,
		})
	}

	for start := 0; start < len(rows); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := e.candles.UpsertBatch(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("candlecache: upsert chunk %s/%s: %w", address, tf, err)
		}
	}
	return nil
}

func bucketStart(tsMS, intervalMs int64) int64 { return (tsMS / intervalMs) * intervalMs }

func dedupeByTimestamp(candles []types.OHLCV) []types.OHLCV {
	seen := make(map[int64]bool, len(candles))
	out := make([]types.OHLCV, 0, len(candles))
	for _, c := range candles {
		if seen[c.Timestamp] {
			continue
		}
		seen[c.Timestamp] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
