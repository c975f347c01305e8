package aggregate

import (
	"testing"
	"time"

	"github.com/pulseintel/solpulse/internal/types"
)

func swapAt(tsMs int64, price, valueUSD float64) types.TokenSwap {
	return types.TokenSwap{
		Timestamp:     time.UnixMilli(tsMs),
		PriceUSD:      price,
		TotalValueUSD: valueUSD,
	}
}

func TestBuildCandlesFromSwaps_BucketsAndGapFills(t *testing.T) {
	const interval = int64(60_000)
	swaps := []types.TokenSwap{
		swapAt(0, 1.0, 10),
		swapAt(30_000, 1.5, 5),
		swapAt(150_000, 2.0, 20), // lands in the 120_000 bucket; 60_000 is empty
	}

	candles := BuildCandlesFromSwaps(swaps, interval, 0)
	if len(candles) != 3 {
		t.Fatalf("expected 3 candles (2 real, 1 gap-filled), got %d", len(candles))
	}

	first := candles[0]
	if first.Open != 1.0 || first.High != 1.5 || first.Low != 1.0 || first.Close != 1.5 || first.Volume != 15 {
		t.Fatalf("unexpected first candle: %+v", first)
	}

	gapFilled := candles[1]
	if gapFilled.Open != 1.5 || gapFilled.Close != 1.5 || gapFilled.Volume != 0 {
		t.Fatalf("expected flat gap-filled candle at prior close, got %+v", gapFilled)
	}
}

func TestBuildCandlesFromSwaps_DropsNonPositivePrices(t *testing.T) {
	swaps := []types.TokenSwap{swapAt(0, 0, 10), swapAt(1000, -5, 10)}
	if got := BuildCandlesFromSwaps(swaps, 60_000, 0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestBuildCandlesFromSwaps_CapsAtMaxCandles(t *testing.T) {
	swaps := []types.TokenSwap{swapAt(0, 1, 1), swapAt(60_000, 2, 1), swapAt(120_000, 3, 1)}
	got := BuildCandlesFromSwaps(swaps, 60_000, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 candles after capping, got %d", len(got))
	}
	if got[len(got)-1].Close != 3 {
		t.Fatalf("expected the most recent candle retained, got %+v", got[len(got)-1])
	}
}

func TestBuildPerTradeCandles_ChainsWithinGap(t *testing.T) {
	swaps := []types.TokenSwap{
		swapAt(0, 1.0, 10),
		swapAt(1000, 1.2, 10), // within MaxGapMS, chains open to prior close
	}
	got := BuildPerTradeCandles(swaps)
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[1].Open != 1.0 {
		t.Fatalf("expected second candle to open at prior close 1.0, got %v", got[1].Open)
	}
}

func TestBuildPerTradeCandles_BreaksOnLargeGap(t *testing.T) {
	swaps := []types.TokenSwap{
		swapAt(0, 1.0, 10),
		swapAt(MaxGapMS+1000, 1.2, 10),
	}
	got := BuildPerTradeCandles(swaps)
	if got[1].Open != 1.2 {
		t.Fatalf("expected second candle to open at its own price after large gap, got %v", got[1].Open)
	}
}

func TestBuildPerTradeCandles_FiltersOutliers(t *testing.T) {
	swaps := []types.TokenSwap{
		swapAt(0, 1.0, 10),
		swapAt(1000, 1.1, 10),
		swapAt(2000, 1.05, 10),
		swapAt(3000, 1000.0, 10), // wildly outside [median/10, median*10]
	}
	got := BuildPerTradeCandles(swaps)
	for _, c := range got {
		if c.Close == 1000.0 {
			t.Fatalf("expected outlier trade to be filtered out, got %+v", got)
		}
	}
}

func TestAggregateWeekly_BucketsToSunday(t *testing.T) {
	// 2026-07-27 is a Monday, 2026-07-28 a Tuesday: both fall in the same
	// UTC week starting Sunday 2026-07-26.
	mon := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC).UnixMilli()
	tue := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC).UnixMilli()
	daily := []types.OHLCV{
		{Timestamp: mon, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10},
		{Timestamp: tue, Open: 1.5, High: 3, Low: 1.4, Close: 2, Volume: 20},
	}

	got := AggregateWeekly(daily)
	if len(got) != 1 {
		t.Fatalf("expected both days in one week bucket, got %d buckets", len(got))
	}
	wk := got[0]
	if wk.Open != 1 || wk.Close != 2 || wk.High != 3 || wk.Low != 1 || wk.Volume != 30 {
		t.Fatalf("unexpected weekly aggregate: %+v", wk)
	}
}

func TestAggregateMonthly_BucketsByCalendarMonth(t *testing.T) {
	d1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	d2 := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC).UnixMilli()
	d3 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	daily := []types.OHLCV{
		{Timestamp: d1, Open: 1, High: 1, Low: 1, Close: 1, Volume: 5},
		{Timestamp: d2, Open: 1, High: 2, Low: 1, Close: 1.8, Volume: 5},
		{Timestamp: d3, Open: 1.8, High: 2, Low: 1.8, Close: 2, Volume: 5},
	}

	got := AggregateMonthly(daily)
	if len(got) != 2 {
		t.Fatalf("expected 2 monthly buckets, got %d", len(got))
	}
	if got[0].Volume != 10 {
		t.Fatalf("expected july bucket to sum both july candles' volume, got %v", got[0].Volume)
	}
}

func TestBuildCandlesFromSwaps_EmptyInput(t *testing.T) {
	if got := BuildCandlesFromSwaps(nil, 60_000, 0); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := BuildCandlesFromSwaps([]types.TokenSwap{swapAt(0, 1, 1)}, 0, 0); got != nil {
		t.Fatalf("expected nil for non-positive interval, got %v", got)
	}
}
