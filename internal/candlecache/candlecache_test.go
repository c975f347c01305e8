package candlecache

import (
	"context"
	"testing"
	"time"

	"github.com/pulseintel/solpulse/internal/types"
)

type fakeCandleRepo struct {
	rows []types.CandleRow
}

func (f *fakeCandleRepo) UpsertBatch(ctx context.Context, rows []types.CandleRow) error {
	for _, r := range rows {
		replaced := false
		for i, existing := range f.rows {
			if existing.TokenAddress == r.TokenAddress && existing.Timeframe == r.Timeframe && existing.Timestamp == r.Timestamp {
				f.rows[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			f.rows = append(f.rows, r)
		}
	}
	return nil
}

func (f *fakeCandleRepo) Range(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.CandleRow, error) {
	var out []types.CandleRow
	for _, r := range f.rows {
		if r.TokenAddress == address && r.Timeframe == tf && r.Timestamp >= from && r.Timestamp <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestEngine_GetCandles_FetchesOnEmptyCache(t *testing.T) {
	repo := &fakeCandleRepo{}
	e := New(repo, 300_000)

	calls := 0
	fetch := func(ctx context.Context, from, to int64) ([]types.OHLCV, error) {
		calls++
		return []types.OHLCV{{Timestamp: from, Open: 1, High: 1, Low: 1, Close: 1, Volume: 5}}, nil
	}

	rows, err := e.GetCandles(context.Background(), "addr", types.TF1h, 0, IntervalMS(types.TF1h), fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one fetch on empty cache, got %d", calls)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after fetch, got %d", len(rows))
	}
}

func TestEngine_GetCandles_UnsupportedTimeframe(t *testing.T) {
	e := New(&fakeCandleRepo{}, 300_000)
	_, err := e.GetCandles(context.Background(), "addr", types.TF1w, 0, 1000, nil)
	if err == nil {
		t.Fatal("expected error for unsupported fixed timeframe 1w")
	}
}

func TestEngine_GetCandles_UsesCacheWhenFreshAndComplete(t *testing.T) {
	interval := IntervalMS(types.TF1h)
	now := time.Now().UnixMilli()
	liveBucket := bucketStart(now, interval)
	repo := &fakeCandleRepo{rows: []types.CandleRow{
		{TokenAddress: "addr", Timeframe: types.TF1h, Timestamp: liveBucket, Open: 1, High: 1, Low: 1, Close: 1, UpdatedAt: time.Now()},
	}}
	e := New(repo, 300_000)

	calls := 0
	fetch := func(ctx context.Context, from, to int64) ([]types.OHLCV, error) {
		calls++
		return nil, nil
	}

	rows, err := e.GetCandles(context.Background(), "addr", types.TF1h, liveBucket, liveBucket, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no fetch when cache is fresh and complete, got %d calls", calls)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 cached row, got %d", len(rows))
	}
}

func TestEngine_GetWeeklyOrMonthly_AggregatesOnMiss(t *testing.T) {
	repo := &fakeCandleRepo{}
	e := New(repo, 300_000)

	d1 := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC).UnixMilli()
	d2 := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC).UnixMilli()
	fetchDaily := func(ctx context.Context, from, to int64) ([]types.OHLCV, error) {
		return []types.OHLCV{
			{Timestamp: d1, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10},
			{Timestamp: d2, Open: 1.5, High: 3, Low: 1, Close: 2, Volume: 5},
		}, nil
	}

	got, err := e.GetWeeklyOrMonthly(context.Background(), "addr", types.TF1w, d1, d2, fetchDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected both days aggregated into one week, got %d buckets", len(got))
	}
	if got[0].Volume != 15 {
		t.Fatalf("expected combined volume 15, got %v", got[0].Volume)
	}
}

func TestEngine_GetWeeklyOrMonthly_RejectsFixedTimeframe(t *testing.T) {
	e := New(&fakeCandleRepo{}, 300_000)
	_, err := e.GetWeeklyOrMonthly(context.Background(), "addr", types.TF1h, 0, 1000, nil)
	if err == nil {
		t.Fatal("expected error for non weekly/monthly timeframe")
	}
}
