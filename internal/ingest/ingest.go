// Package ingest is C4: the live trade ingester sitting downstream of
// Feed-P. It implements feeds.PushHandler, turning decoded push events
// into persisted swaps, fan-out notifications, and the in-memory 1s
// OHLCV ring every pulse-token detail view reads live data from.
package ingest

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/fanout"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/ingest/logocache"
	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/solprice"
	"github.com/pulseintel/solpulse/internal/telemetry/metrics"
	"github.com/pulseintel/solpulse/internal/types"
)

// Ingester is C4. Construct with New and register it as the PushClient's
// handler; Run drives the underlying PushClient's reconnect loop.
type Ingester struct {
	swaps    persistence.SwapRepo
	sol      *solprice.Service
	hub      *fanout.Hub
	logos    *logocache.Cache
	metadata feeds.MetadataClient
	push     feeds.PushClient
	log      zerolog.Logger

	graduationProximitySolMC float64

	mu         sync.Mutex
	newTokens  map[string]bool // in-memory NEW set, for reclassification to GRADUATING
	graduating map[string]bool
	migrated   map[string]bool

	rings *rings
}

func New(
	swaps persistence.SwapRepo,
	sol *solprice.Service,
	hub *fanout.Hub,
	logos *logocache.Cache,
	metadata feeds.MetadataClient,
	push feeds.PushClient,
	graduationProximitySolMC float64,
	log zerolog.Logger,
) *Ingester {
	return &Ingester{
		swaps:                    swaps,
		sol:                      sol,
		hub:                      hub,
		logos:                    logos,
		metadata:                 metadata,
		push:                     push,
		graduationProximitySolMC: graduationProximitySolMC,
		log:                      log.With().Str("component", "ingest").Logger(),
		newTokens:                make(map[string]bool),
		graduating:               make(map[string]bool),
		migrated:                 make(map[string]bool),
		rings:                    newRings(),
	}
}

// Run drives the push client's reconnect state machine with this
// Ingester as its handler, blocking until ctx is cancelled or the
// connect-failure cap is hit.
func (ing *Ingester) Run(ctx context.Context) error {
	return ing.push.Run(ctx, ing)
}

// OHLCVSnapshot returns the live 1s ring for mint, ascending by bucket.
// C10's OHLCV reads do not use it; they build candles from token_swap.
func (ing *Ingester) OHLCVSnapshot(mint string) []types.OHLCV {
	return ing.rings.snapshot(mint)
}

// NewMints returns the mints currently held in the in-memory NEW set.
// C5's refresh phase supplements its Feed-M NEW list with these so a
// token seen on Feed-P this tick shows up before the next classify cycle
// has persisted it.
func (ing *Ingester) NewMints() []string {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	out := make([]string, 0, len(ing.newTokens))
	for m := range ing.newTokens {
		out = append(out, m)
	}
	return out
}

// GraduatingMints returns the mints currently held in the in-memory
// GRADUATING set, for the same reason as NewMints.
func (ing *Ingester) GraduatingMints() []string {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	out := make([]string, 0, len(ing.graduating))
	for m := range ing.graduating {
		out = append(out, m)
	}
	return out
}

func (ing *Ingester) OnNewToken(ev feeds.NewTokenEvent) {
	ing.mu.Lock()
	ing.newTokens[ev.Mint] = true
	ing.mu.Unlock()

	ing.hub.Publish(fanout.Event{
		Topic:   fanout.TopicPulse,
		Type:    fanout.EventNewPair,
		Payload: ev,
	})

	if err := ing.push.SubscribeTokenTrades(ev.Mint); err != nil {
		ing.log.Warn().Err(err).Str("mint", ev.Mint).Msg("failed to auto-subscribe trade stream")
	}

	go ing.resolveLogo(ev)
}

func (ing *Ingester) resolveLogo(ev feeds.NewTokenEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logoURI := ev.URI
	if meta, err := ing.metadata.GetMetadata(ctx, ev.Mint); err == nil && meta != nil && meta.LogoURI != "" {
		logoURI = meta.LogoURI
	}

	resolved, err := ing.logos.Resolve(ctx, logoURI)
	if err != nil {
		ing.log.Debug().Err(err).Str("mint", ev.Mint).Msg("logo resolution failed")
		return
	}

	ing.hub.Publish(fanout.Event{
		Topic: fanout.TopicPulse,
		Type:  fanout.EventTokenUpdate,
		Payload: map[string]any{
			"mint":     ev.Mint,
			"logo_uri": resolved,
		},
	})
}

func (ing *Ingester) OnTrade(ev feeds.TradeEvent) {
	priceUSD := ing.derivePrice(ev)
	if priceUSD <= 0 {
		return
	}

	swap := types.TokenSwap{
		TokenAddress:  ev.Mint,
		TxHash:        ev.Signature,
		Timestamp:     ev.Timestamp,
		Type:          ev.Type,
		WalletAddress: ev.Trader,
		TokenAmount:   ev.TokenAmount,
		SolAmount:     ev.SolAmount,
		PriceUSD:      priceUSD,
		TotalValueUSD: ev.SolAmount * ing.sol.GetPriceSync(),
	}
	ing.persistSwap(swap)

	tsSec := ev.Timestamp.Unix()
	candle := ing.rings.get(ev.Mint).update(tsSec, priceUSD, swap.TotalValueUSD)
	ing.hub.Publish(fanout.Event{
		Topic: fanout.TopicOHLCV(ev.Mint, "usd", "1s"),
		Type:  fanout.EventOHLCVUpdate,
		Payload: map[string]any{
			"mint":   ev.Mint,
			"candle": candle,
		},
	})

	ing.maybeReclassify(ev)
}

// derivePrice computes price_usd = sol_amount * sol_price_usd /
// token_amount when both amounts are positive; any other case
// (including a non-positive SOL price) drops the trade.
func (ing *Ingester) derivePrice(ev feeds.TradeEvent) float64 {
	if ev.SolAmount <= 0 || ev.TokenAmount <= 0 {
		return 0
	}
	solPrice := ing.sol.GetPriceSync()
	if solPrice <= 0 {
		return 0
	}
	price := ev.SolAmount * solPrice / ev.TokenAmount
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0
	}
	return price
}

// persistSwap inserts swap, retrying once on a non-conflict error before
// logging and bumping a drop counter, per the failure policy.
// ON CONFLICT DO NOTHING in the repository already makes duplicate
// delivery a no-op, not an error.
func (ing *Ingester) persistSwap(swap types.TokenSwap) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := ing.swaps.InsertOne(ctx, swap)
	if err == nil {
		return
	}

	ing.log.Warn().Err(err).Str("mint", swap.TokenAddress).Str("tx", swap.TxHash).Msg("swap persist failed, retrying once")
	_, err = ing.swaps.InsertOne(ctx, swap)
	if err != nil {
		ing.log.Error().Err(err).Str("mint", swap.TokenAddress).Str("tx", swap.TxHash).Msg("swap persist dropped after retry")
		metrics.SwapPersistDropped.WithLabelValues("ingest").Inc()
	}
}

func (ing *Ingester) maybeReclassify(ev feeds.TradeEvent) {
	if ev.MarketCapSOL < ing.graduationProximitySolMC {
		return
	}

	ing.mu.Lock()
	wasNew := ing.newTokens[ev.Mint]
	if wasNew {
		delete(ing.newTokens, ev.Mint)
		ing.graduating[ev.Mint] = true
	}
	ing.mu.Unlock()

	if !wasNew {
		return
	}

	ing.hub.Publish(fanout.Event{
		Topic: fanout.TopicPulse,
		Type:  fanout.EventGraduating,
		Payload: map[string]any{
			"mint":           ev.Mint,
			"market_cap_sol": ev.MarketCapSOL,
		},
	})
}

func (ing *Ingester) OnMigration(ev feeds.MigrationEvent) {
	ing.mu.Lock()
	delete(ing.graduating, ev.Mint)
	ing.migrated[ev.Mint] = true
	ing.mu.Unlock()

	ing.hub.Publish(fanout.Event{
		Topic:   fanout.TopicPulse,
		Type:    fanout.EventMigrated,
		Payload: ev,
	})
}

// MigratedMints returns the mints C4 has observed migrate off the
// bonding curve via Feed-P, for the same reason as NewMints: C5 folds
// these into GRADUATED before Feed-M has necessarily caught up.
func (ing *Ingester) MigratedMints() []string {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	out := make([]string, 0, len(ing.migrated))
	for m := range ing.migrated {
		out = append(out, m)
	}
	return out
}
