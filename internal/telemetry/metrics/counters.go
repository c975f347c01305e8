package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters for the sync engines and ingester, kept alongside
// ProviderHealth since both register against the default Prometheus
// registry via promauto the same way.
var (
	SwapPersistDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_persist_dropped_total",
			Help: "Swaps dropped after a non-conflict persistence error survived one retry",
		},
		[]string{"component"},
	)

	PulseSyncTickSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_sync_tick_skipped_total",
			Help: "Pulse sync ticks skipped because the previous tick was still running",
		},
	)

	OrphanSwapsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_swaps_deleted_total",
			Help: "token_swap rows removed by orphan cleanup",
		},
	)

	CandleCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candle_cache_hits_total",
			Help: "candle_cache reads served without hitting a feed",
		},
		[]string{"timeframe"},
	)

	CandleCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candle_cache_misses_total",
			Help: "candle_cache reads that had to fetch and rebuild candles",
		},
		[]string{"timeframe"},
	)

	FanoutSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fanout_subscribers",
			Help: "Active subscriber count per fan-out topic",
		},
		[]string{"topic"},
	)

	// BreakerState is 0=closed, 1=half-open, 2=open, matching gobreaker.State's
	// own ordering so a dashboard can graph it directly.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breaker_state",
			Help: "Circuit breaker state per feed (0=closed, 1=half-open, 2=open)",
		},
		[]string{"feed"},
	)
)
