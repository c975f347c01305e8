// Package pulsesync is C5: the periodic loop that keeps pulse_token in
// sync with the NEW/GRADUATING/GRADUATED lifecycle, built on a plain
// ticker/ctx.Done() run loop generalized from job-type dispatch to the
// four fixed phases of the pulse token lifecycle.
package pulsesync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/fanout"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/ingest/logocache"
	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/telemetry/metrics"
	"github.com/pulseintel/solpulse/internal/types"
)

const (
	refreshLimitGraduating = 100
	refreshLimitOther      = 50

	expireNewAfter        = 24 * time.Hour
	expireGraduatingAfter = 48 * time.Hour
	expireGraduatedAfter  = 7 * 24 * time.Hour

	kInitHistorical  = 5
	kTailIncremental = 20

	orphanCleanupEvery = 5 * time.Minute
	orphanBatchSize    = 10

	tickTimeout = 10 * time.Second
)

// SwapSyncer is the slice of C6 that C5 kicks. Kick calls are non-blocking:
// C6 owns its own single-flight guard per address and logs its own errors,
// so a scheduling call here never has anything to wait on or abort a tick
// over.
type SwapSyncer interface {
	KickHistorical(address string)
	KickTail(address string)
}

// LiveSource supplements the feed-reported NEW/GRADUATING lists with
// whatever C4 has observed so far this tick but hasn't round-tripped
// through Feed-M yet. Implemented by *ingest.Ingester.
type LiveSource interface {
	NewMints() []string
	GraduatingMints() []string
	MigratedMints() []string
}

type categoryLists struct {
	newTokens  []types.PulseToken
	graduating []types.PulseToken
	graduated  []types.PulseToken
}

// Engine is C5.
type Engine struct {
	metadata    feeds.MetadataClient
	pulseTokens persistence.PulseTokenRepo
	syncStatus  persistence.SyncStatusRepo
	swaps       persistence.SwapRepo
	swapSync    SwapSyncer
	live        LiveSource
	logos       *logocache.Cache
	hub         *fanout.Hub
	log         zerolog.Logger

	interval        time.Duration
	graduationRange [2]float64

	running atomic.Bool

	orphanMu   sync.Mutex
	lastOrphan time.Time
}

func New(
	metadata feeds.MetadataClient,
	pulseTokens persistence.PulseTokenRepo,
	syncStatus persistence.SyncStatusRepo,
	swaps persistence.SwapRepo,
	swapSync SwapSyncer,
	live LiveSource,
	logos *logocache.Cache,
	hub *fanout.Hub,
	interval time.Duration,
	graduationRange [2]float64,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		metadata:        metadata,
		pulseTokens:     pulseTokens,
		syncStatus:      syncStatus,
		swaps:           swaps,
		swapSync:        swapSync,
		live:            live,
		logos:           logos,
		hub:             hub,
		interval:        interval,
		graduationRange: graduationRange,
		log:             log.With().Str("component", "pulsesync").Logger(),
	}
}

// Run blocks until ctx is cancelled, ticking at e.interval.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one pass of refresh/classify+persist/enrich/expire plus the
// swap-sync kick and (every 5m) orphan cleanup. The guard is a plain
// exclusion flag rather than golang.org/x/sync/singleflight: a ticker
// never has two distinct keys in flight, and an overlapping tick should
// return immediately, not block on the one already running the way
// singleflight.Group.Do would.
func (e *Engine) tick(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		metrics.PulseSyncTickSkipped.Inc()
		return
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	var lists categoryLists
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); lists = e.refresh(ctx) }()
	go func() { defer wg.Done(); e.expire(ctx) }()
	wg.Wait()

	wg.Add(2)
	go func() { defer wg.Done(); e.classifyAndPersist(ctx, lists) }()
	go func() { defer wg.Done(); e.enrich(ctx, lists) }()
	wg.Wait()

	e.kickSwapSync(ctx)
	e.maybeOrphanCleanup(ctx)
}

func (e *Engine) refresh(ctx context.Context) categoryLists {
	var lists categoryLists
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		items, err := e.metadata.GetNewList(ctx, refreshLimitOther)
		if err != nil {
			e.log.Warn().Err(err).Msg("refresh: new list fetch failed")
			return
		}
		lists.newTokens = items
	}()
	go func() {
		defer wg.Done()
		items, err := e.metadata.GetGraduatingList(ctx, refreshLimitGraduating)
		if err != nil {
			e.log.Warn().Err(err).Msg("refresh: graduating list fetch failed")
			return
		}
		lists.graduating = items
	}()
	go func() {
		defer wg.Done()
		items, err := e.metadata.GetGraduatedList(ctx, refreshLimitOther)
		if err != nil {
			e.log.Warn().Err(err).Msg("refresh: graduated list fetch failed")
			return
		}
		lists.graduated = items
	}()
	wg.Wait()

	e.supplementWithLive(&lists)
	return lists
}

// supplementWithLive adds mints C4 has already classified in memory but
// that Feed-M hasn't reported yet, per the refresh phase.
func (e *Engine) supplementWithLive(lists *categoryLists) {
	if e.live == nil {
		return
	}

	present := make(map[string]bool, len(lists.newTokens)+len(lists.graduating)+len(lists.graduated))
	for _, t := range lists.newTokens {
		present[t.Address] = true
	}
	for _, t := range lists.graduating {
		present[t.Address] = true
	}
	for _, t := range lists.graduated {
		present[t.Address] = true
	}

	for _, mint := range e.live.NewMints() {
		if present[mint] {
			continue
		}
		lists.newTokens = append(lists.newTokens, types.PulseToken{
			Address:  mint,
			Category: types.CategoryNew,
			Source:   types.SourcePush,
		})
		present[mint] = true
	}
	for _, mint := range e.live.GraduatingMints() {
		if present[mint] {
			continue
		}
		lists.graduating = append(lists.graduating, types.PulseToken{
			Address:  mint,
			Category: types.CategoryGraduating,
			Source:   types.SourcePush,
		})
		present[mint] = true
	}
	for _, mint := range e.live.MigratedMints() {
		if present[mint] {
			continue
		}
		lists.graduated = append(lists.graduated, types.PulseToken{
			Address:  mint,
			Category: types.CategoryGraduated,
			Source:   types.SourcePush,
		})
		present[mint] = true
	}
}

// classifyAndPersist upserts every refreshed item under its category,
// filtering GRADUATING to the configured market-cap window.
func (e *Engine) classifyAndPersist(ctx context.Context, lists categoryLists) {
	batch := make([]types.PulseToken, 0, len(lists.newTokens)+len(lists.graduating)+len(lists.graduated))

	for _, t := range lists.newTokens {
		t.Category = types.CategoryNew
		batch = append(batch, t)
	}
	for _, t := range lists.graduating {
		if t.MarketCap < e.graduationRange[0] || t.MarketCap >= e.graduationRange[1] {
			continue
		}
		t.Category = types.CategoryGraduating
		batch = append(batch, t)
	}
	for _, t := range lists.graduated {
		t.Category = types.CategoryGraduated
		batch = append(batch, t)
	}

	if len(batch) == 0 {
		return
	}
	if err := e.pulseTokens.UpsertBatch(ctx, batch); err != nil {
		e.log.Error().Err(err).Int("count", len(batch)).Msg("classify+persist: upsert batch failed")
		return
	}

	for _, t := range batch {
		e.hub.Publish(fanout.Event{
			Topic:   fanout.TopicPulse,
			Type:    fanout.EventTokenUpdate,
			Payload: t.Out(),
		})
	}
}

// enrich backfills logo_uri on GRADUATED tokens from the already-resolved
// logo cache only; it never does a fresh pairs/price round trip here, so
// Peek never triggers a gateway fetch on a miss.
func (e *Engine) enrich(ctx context.Context, lists categoryLists) {
	if e.logos == nil {
		return
	}

	var patched []types.PulseToken
	for _, t := range lists.graduated {
		if t.LogoURI == "" {
			continue
		}
		resolved, ok := e.logos.Peek(t.LogoURI)
		if !ok || resolved == t.LogoURI {
			continue
		}
		t.Category = types.CategoryGraduated
		t.LogoURI = resolved
		patched = append(patched, t)
	}
	if len(patched) == 0 {
		return
	}

	if err := e.pulseTokens.UpsertBatch(ctx, patched); err != nil {
		e.log.Warn().Err(err).Msg("enrich: logo upsert failed")
		return
	}
	for _, t := range patched {
		e.hub.Publish(fanout.Event{
			Topic:   fanout.TopicPulse,
			Type:    fanout.EventTokenUpdate,
			Payload: t.Out(),
		})
	}
}

func (e *Engine) expire(ctx context.Context) {
	if n, err := e.pulseTokens.ExpireNew(ctx, expireNewAfter); err != nil {
		e.log.Warn().Err(err).Msg("expire: NEW failed")
	} else if n > 0 {
		e.log.Debug().Int64("count", n).Msg("expired NEW rows")
	}
	if n, err := e.pulseTokens.ExpireGraduating(ctx, expireGraduatingAfter); err != nil {
		e.log.Warn().Err(err).Msg("expire: GRADUATING failed")
	} else if n > 0 {
		e.log.Debug().Int64("count", n).Msg("expired GRADUATING rows")
	}
	if n, err := e.pulseTokens.ExpireGraduated(ctx, expireGraduatedAfter); err != nil {
		e.log.Warn().Err(err).Msg("expire: GRADUATED failed")
	} else if n > 0 {
		e.log.Debug().Int64("count", n).Msg("expired GRADUATED rows")
	}
}

func (e *Engine) kickSwapSync(ctx context.Context) {
	if e.swapSync == nil {
		return
	}

	unsynced, err := e.syncStatus.UnsyncedAddresses(ctx, kInitHistorical)
	if err != nil {
		e.log.Warn().Err(err).Msg("swap-sync kick: unsynced query failed")
	}
	for _, addr := range unsynced {
		e.swapSync.KickHistorical(addr)
	}

	synced, err := e.syncStatus.SyncedAddresses(ctx, kTailIncremental)
	if err != nil {
		e.log.Warn().Err(err).Msg("swap-sync kick: synced query failed")
		return
	}
	for _, addr := range synced {
		e.swapSync.KickTail(addr)
	}
}

func (e *Engine) maybeOrphanCleanup(ctx context.Context) {
	e.orphanMu.Lock()
	due := time.Since(e.lastOrphan) >= orphanCleanupEvery
	if due {
		e.lastOrphan = time.Now()
	}
	e.orphanMu.Unlock()
	if !due {
		return
	}

	orphans, err := e.syncStatus.OrphanedAddresses(ctx, orphanBatchSize)
	if err != nil {
		e.log.Warn().Err(err).Msg("orphan cleanup: query failed")
		return
	}

	for _, addr := range orphans {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.swaps.DeleteByToken(ctx, addr, 0); err != nil {
			e.log.Warn().Err(err).Str("address", addr).Msg("orphan cleanup: swap delete failed")
			continue
		}
		if err := e.syncStatus.Delete(ctx, addr); err != nil {
			e.log.Warn().Err(err).Str("address", addr).Msg("orphan cleanup: sync_status delete failed")
			continue
		}
		metrics.OrphanSwapsDeleted.Inc()
	}
}
