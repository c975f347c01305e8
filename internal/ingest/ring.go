package ingest

import (
	"sync"

	"github.com/pulseintel/solpulse/internal/types"
)

// ringWindowSeconds bounds the in-memory 1s OHLCV ring: retain only
// buckets within the last 300 seconds.
const ringWindowSeconds = 300

// mintRing is the rolling 1s-bucketed OHLCV window for one mint. Buckets
// are keyed by floor(ts/1s); values in ascending bucket order are served
// to readers, older buckets are dropped once the window advances.
type mintRing struct {
	mu      sync.Mutex
	buckets map[int64]*types.OHLCV
	order   []int64
}

func newMintRing() *mintRing {
	return &mintRing{buckets: make(map[int64]*types.OHLCV)}
}

// update applies one trade to the bucket for tsSec, creating it if
// necessary, and trims buckets that have aged out of the window.
func (r *mintRing) update(tsSec int64, price, valueUSD float64) types.OHLCV {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[tsSec]; ok {
		if price > b.High {
			b.High = price
		}
		if price < b.Low {
			b.Low = price
		}
		b.Close = price
		b.Volume += valueUSD
		r.trim(tsSec)
		return *b
	}

	b := &types.OHLCV{
		Timestamp: tsSec * 1000,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    valueUSD,
	}
	r.buckets[tsSec] = b
	r.order = append(r.order, tsSec)
	r.trim(tsSec)
	return *b
}

// trim removes buckets older than ringWindowSeconds relative to latestSec.
// Assumes the caller holds r.mu.
func (r *mintRing) trim(latestSec int64) {
	cutoff := latestSec - ringWindowSeconds
	i := 0
	for ; i < len(r.order); i++ {
		if r.order[i] > cutoff {
			break
		}
		delete(r.buckets, r.order[i])
	}
	if i > 0 {
		r.order = append([]int64(nil), r.order[i:]...)
	}
}

// snapshot returns the retained buckets in ascending timestamp order.
func (r *mintRing) snapshot() []types.OHLCV {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.OHLCV, 0, len(r.order))
	for _, ts := range r.order {
		out = append(out, *r.buckets[ts])
	}
	return out
}

// rings is the per-mint registry of mintRings, created lazily and never
// evicted: when the push client's LRU(100) drops a mint it unsubscribes
// the trade stream but does not delete the mint's ring, so the registry
// keeps one ring (at most 300 candles) for every mint that ever traded.
type rings struct {
	mu sync.Mutex
	m  map[string]*mintRing
}

func newRings() *rings {
	return &rings{m: make(map[string]*mintRing)}
}

func (rs *rings) get(mint string) *mintRing {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.m[mint]
	if !ok {
		r = newMintRing()
		rs.m[mint] = r
	}
	return r
}

func (rs *rings) delete(mint string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.m, mint)
}

func (rs *rings) snapshot(mint string) []types.OHLCV {
	rs.mu.Lock()
	r, ok := rs.m[mint]
	rs.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}
