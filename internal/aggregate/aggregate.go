// Package aggregate holds the pure, reentrant candle-building functions
// shared by C6 and C7: no I/O, no upstream calls, only transforms over
// already-priced swaps or daily candles. Kept separate from both callers
// so the same de-duplication/ordering invariants apply whichever engine
// is building a candle.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/pulseintel/solpulse/internal/types"
)

// MaxGapMS bounds how long a per-trade candle may chain its open to the
// previous trade's close before starting fresh at its own price.
const MaxGapMS = 5000

// BuildCandlesFromSwaps buckets ASC-ordered, already-priced swaps into
// interval_ms candles, gap-filling any bucket with no trades as a flat
// candle at the previous close with zero volume, and returns at most the
// last maxCandles buckets. Swaps with a non-positive price are dropped
// before bucketing.
func BuildCandlesFromSwaps(swaps []types.TokenSwap, intervalMs int64, maxCandles int) []types.OHLCV {
	if len(swaps) == 0 || intervalMs <= 0 {
		return nil
	}

	buckets := make(map[int64]*types.OHLCV)
	var order []int64
	for _, s := range swaps {
		if s.PriceUSD <= 0 {
			continue
		}
		ts := s.Timestamp.UnixMilli()
		bucketStart := (ts / intervalMs) * intervalMs

		b, ok := buckets[bucketStart]
		if !ok {
			b = &types.OHLCV{Timestamp: bucketStart, Open: s.PriceUSD, High: s.PriceUSD, Low: s.PriceUSD, Close: s.PriceUSD}
			buckets[bucketStart] = b
			order = append(order, bucketStart)
		}
		if s.PriceUSD > b.High {
			b.High = s.PriceUSD
		}
		if s.PriceUSD < b.Low {
			b.Low = s.PriceUSD
		}
		b.Close = s.PriceUSD
		b.Volume += s.TotalValueUSD
	}
	if len(order) == 0 {
		return nil
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	filled := make([]types.OHLCV, 0, len(order))
	prevClose := buckets[order[0]].Open
	last := order[len(order)-1]
	for ts := order[0]; ts <= last; ts += intervalMs {
		if b, ok := buckets[ts]; ok {
			filled = append(filled, *b)
			prevClose = b.Close
			continue
		}
		filled = append(filled, types.OHLCV{Timestamp: ts, Open: prevClose, High: prevClose, Low: prevClose, Close: prevClose})
	}

	if maxCandles > 0 && len(filled) > maxCandles {
		filled = filled[len(filled)-maxCandles:]
	}
	return filled
}

// BuildPerTradeCandles filters swaps through the median-based outlier
// rule, then builds one candle per surviving trade, chaining open to the
// previous trade's close unless more than MaxGapMS elapsed between them.
func BuildPerTradeCandles(swaps []types.TokenSwap) []types.OHLCV {
	filtered := filterOutliers(swaps)
	if len(filtered) == 0 {
		return nil
	}

	out := make([]types.OHLCV, 0, len(filtered))
	var prevClose float64
	var prevTime time.Time
	for i, s := range filtered {
		open := s.PriceUSD
		if i > 0 && s.Timestamp.Sub(prevTime) <= MaxGapMS*time.Millisecond {
			open = prevClose
		}
		out = append(out, types.OHLCV{
			Timestamp: s.Timestamp.UnixMilli(),
			Open:      open,
			High:      math.Max(open, s.PriceUSD),
			Low:       math.Min(open, s.PriceUSD),
			Close:     s.PriceUSD,
			Volume:    s.TotalValueUSD,
		})
		prevClose = s.PriceUSD
		prevTime = s.Timestamp
	}
	return out
}

// filterOutliers drops trades priced outside [median/10, median*10] of
// the median of all positive prices in swaps.
func filterOutliers(swaps []types.TokenSwap) []types.TokenSwap {
	var positive []float64
	for _, s := range swaps {
		if s.PriceUSD > 0 {
			positive = append(positive, s.PriceUSD)
		}
	}
	if len(positive) == 0 {
		return nil
	}
	median := medianOf(positive)
	lo, hi := median/10, median*10

	out := make([]types.TokenSwap, 0, len(swaps))
	for _, s := range swaps {
		if s.PriceUSD >= lo && s.PriceUSD <= hi {
			out = append(out, s)
		}
	}
	return out
}

func medianOf(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// AggregateWeekly buckets ASC-ordered, de-duplicated daily candles into
// UTC-Sunday weeks.
func AggregateWeekly(daily []types.OHLCV) []types.OHLCV {
	return aggregateBy(daily, weekStart)
}

// AggregateMonthly buckets ASC-ordered, de-duplicated daily candles into
// UTC calendar months.
func AggregateMonthly(daily []types.OHLCV) []types.OHLCV {
	return aggregateBy(daily, monthStart)
}

func weekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(t.Weekday()))
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func aggregateBy(daily []types.OHLCV, bucketOf func(time.Time) time.Time) []types.OHLCV {
	if len(daily) == 0 {
		return nil
	}

	var out []types.OHLCV
	var cur *types.OHLCV
	var curBucket time.Time

	for _, d := range daily {
		b := bucketOf(time.UnixMilli(d.Timestamp))
		if cur == nil || !b.Equal(curBucket) {
			if cur != nil {
				out = append(out, *cur)
			}
			curBucket = b
			next := types.OHLCV{Timestamp: b.UnixMilli(), Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, Volume: d.Volume}
			cur = &next
			continue
		}
		if d.High > cur.High {
			cur.High = d.High
		}
		if d.Low < cur.Low {
			cur.Low = d.Low
		}
		cur.Close = d.Close
		cur.Volume += d.Volume
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
