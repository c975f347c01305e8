// Package readapi is C10: the read-only services httpapi adapts onto
// HTTP. Every method here only reads C2/C3 (persistence.*/kvcache) and
// falls through to the upstream feeds on miss; none of them write a
// table other than the one documented exception (GetToken caches its
// fallback hit into pulse_token, the one place this package writes).
package readapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/aggregate"
	"github.com/pulseintel/solpulse/internal/candlecache"
	"github.com/pulseintel/solpulse/internal/errs"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/kvcache"
	"github.com/pulseintel/solpulse/internal/persistence"
	"github.com/pulseintel/solpulse/internal/solprice"
	"github.com/pulseintel/solpulse/internal/swapsync"
	"github.com/pulseintel/solpulse/internal/types"
)

const tradesReadLimit = 200

// Service is C10.
type Service struct {
	tokens      persistence.TokenRepo
	pulseTokens persistence.PulseTokenRepo
	swaps       persistence.SwapRepo
	syncStatus  persistence.SyncStatusRepo

	metadata  feeds.MetadataClient
	dex       feeds.DexClient
	dashboard feeds.DashboardClient
	supply    feeds.SupplyClient

	swapSync    *swapsync.Engine
	candleCache *candlecache.Engine
	sol         *solprice.Service

	cache kvcache.Cache
	ttls  kvcache.TTLs
	log   zerolog.Logger
}

func New(
	tokens persistence.TokenRepo,
	pulseTokens persistence.PulseTokenRepo,
	swaps persistence.SwapRepo,
	syncStatus persistence.SyncStatusRepo,
	metadata feeds.MetadataClient,
	dex feeds.DexClient,
	dashboard feeds.DashboardClient,
	supply feeds.SupplyClient,
	swapSync *swapsync.Engine,
	candleCache *candlecache.Engine,
	sol *solprice.Service,
	cache kvcache.Cache,
	log zerolog.Logger,
) *Service {
	return &Service{
		tokens:      tokens,
		pulseTokens: pulseTokens,
		swaps:       swaps,
		syncStatus:  syncStatus,
		metadata:    metadata,
		dex:         dex,
		dashboard:   dashboard,
		supply:      supply,
		swapSync:    swapSync,
		candleCache: candleCache,
		sol:         sol,
		cache:       cache,
		ttls:        kvcache.DefaultTTLs(),
		log:         log.With().Str("component", "readapi").Logger(),
	}
}

// GetToken returns the pulse token at address, falling through Feed-M,
// Feed-D and Feed-B in order when no pulse_token row exists yet. The
// first upstream hit is cached into pulse_token so later reads are
// DB-only; this is the one write this package performs.
func (s *Service) GetToken(ctx context.Context, address string) (types.PulseTokenOut, error) {
	key := kvcache.Key("token", address)
	var cached types.PulseTokenOut
	if kvcache.GetJSON(ctx, s.cache, key, &cached) {
		return cached, nil
	}

	if p, err := s.pulseTokens.Get(ctx, address); err != nil {
		return types.PulseTokenOut{}, errs.InternalErr("readapi.GetToken", err)
	} else if p != nil {
		out := p.Out()
		kvcache.SetJSON(ctx, s.cache, key, out, s.ttls.TokenDetail)
		return out, nil
	}

	if meta, err := s.metadata.GetMetadata(ctx, address); err == nil && meta != nil {
		return s.cacheFallbackHit(ctx, *meta, key)
	}

	if s.dex != nil {
		if lites, err := s.dex.Search(ctx, address); err == nil {
			for _, lite := range lites {
				if lite.Address == address {
					return s.cacheFallbackHit(ctx, pulseTokenFromLite(lite, types.SourceDex), key)
				}
			}
		}
	}

	if s.dashboard != nil {
		if lite, err := s.dashboard.TokenOverview(ctx, address); err == nil && lite != nil {
			return s.cacheFallbackHit(ctx, pulseTokenFromLite(*lite, types.SourceDashboard), key)
		}
	}

	return types.PulseTokenOut{}, errs.NotFoundErr("readapi.GetToken", fmt.Errorf("token %s not found on any feed", address))
}

func (s *Service) cacheFallbackHit(ctx context.Context, p types.PulseToken, key string) (types.PulseTokenOut, error) {
	if err := s.pulseTokens.UpsertBatch(ctx, []types.PulseToken{p}); err != nil {
		s.log.Warn().Err(err).Str("address", p.Address).Msg("GetToken: fallback-hit cache upsert failed")
	}
	out := p.Out()
	kvcache.SetJSON(ctx, s.cache, key, out, s.ttls.TokenDetail)
	return out, nil
}

// pulseTokenFromLite canonicalizes a dex/dashboard hit into a pulse_token
// row. Tokens reached through Feed-D/Feed-B rather than the launchpad
// feed have no bonding-curve lifecycle, so they are recorded GRADUATED
// (an established, non-bonding-curve token) with Source marking where
// they actually came from.
func pulseTokenFromLite(lite types.TokenLite, source types.Source) types.PulseToken {
	now := time.Now()
	return types.PulseToken{
		Address:        lite.Address,
		Symbol:         lite.Symbol,
		Name:           lite.Name,
		Decimals:       lite.Decimals,
		LogoURI:        lite.LogoURI,
		Price:          lite.Price,
		PriceChange24h: lite.PriceChange24h,
		Volume24h:      lite.Volume24h,
		MarketCap:      lite.MarketCap,
		Liquidity:      lite.Liquidity,
		Category:       types.CategoryGraduated,
		GraduatedAt:    &now,
		Source:         source,
	}
}

// GetTokenList queries dashboard tokens with optional case-insensitive
// contains search on symbol|name|address.
func (s *Service) GetTokenList(ctx context.Context, sortBy, order, search string, page, limit int) ([]types.TokenLite, int, error) {
	rows, total, err := s.tokens.List(ctx, sortBy, order, search, page, limit)
	if err != nil {
		return nil, 0, errs.InternalErr("readapi.GetTokenList", err)
	}
	out := make([]types.TokenLite, 0, len(rows))
	for _, t := range rows {
		out = append(out, types.TokenLite{
			Address:        t.Address,
			Symbol:         t.Symbol,
			Name:           t.Name,
			Decimals:       t.Decimals,
			LogoURI:        t.LogoURI,
			Price:          t.Price,
			PriceChange24h: t.PriceChange24h,
			Volume24h:      t.Volume24h,
			MarketCap:      t.MarketCap,
			Liquidity:      t.Liquidity,
		})
	}
	return out, total, nil
}

// GetOHLCV serves candles for either a dashboard token (via C7, backed
// by Feed-B) or a pulse token (via C6's DB-backed read), picked by
// whether a pulse_token row exists for address.
func (s *Service) GetOHLCV(ctx context.Context, address string, tf types.Timeframe, from, to int64, maxCandles int) ([]types.OHLCV, error) {
	pulse, err := s.pulseTokens.Get(ctx, address)
	if err != nil {
		return nil, errs.InternalErr("readapi.GetOHLCV", err)
	}
	if pulse != nil {
		return s.pulseOHLCV(ctx, address, tf, maxCandles)
	}
	return s.dashboardOHLCV(ctx, address, tf, from, to)
}

func (s *Service) pulseOHLCV(ctx context.Context, address string, tf types.Timeframe, maxCandles int) ([]types.OHLCV, error) {
	key := kvcache.Key("ohlcv", "pulse", address, string(tf))
	var cached []types.OHLCV
	if kvcache.GetJSON(ctx, s.cache, key, &cached) {
		return cached, nil
	}

	var out []types.OHLCV
	var err error
	switch tf {
	case types.TF1w, types.TF1M:
		var daily []types.OHLCV
		daily, err = s.swapSync.OHLCV(ctx, address, types.TF1d.IntervalMS(), 0)
		if err == nil {
			if tf == types.TF1w {
				out = aggregate.AggregateWeekly(daily)
			} else {
				out = aggregate.AggregateMonthly(daily)
			}
		}
	default:
		out, err = s.swapSync.OHLCV(ctx, address, tf.IntervalMS(), maxCandles)
	}
	if err != nil {
		return nil, errs.InternalErr("readapi.GetOHLCV", err)
	}

	kvcache.SetJSON(ctx, s.cache, key, out, s.ttls.OHLCVDB)
	return out, nil
}

func (s *Service) dashboardOHLCV(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error) {
	key := kvcache.Key("ohlcv", "dash", address, string(tf), fmt.Sprint(from), fmt.Sprint(to))
	var cached []types.OHLCV
	if kvcache.GetJSON(ctx, s.cache, key, &cached) {
		return cached, nil
	}

	var out []types.OHLCV
	var err error
	switch tf {
	case types.TF1w, types.TF1M:
		out, err = s.candleCache.GetWeeklyOrMonthly(ctx, address, tf, from, to, func(ctx context.Context, f, t int64) ([]types.OHLCV, error) {
			return s.dashboard.OHLCV(ctx, address, types.TF1d, f, t)
		})
	default:
		var rows []types.CandleRow
		rows, err = s.candleCache.GetCandles(ctx, address, tf, from, to, func(ctx context.Context, f, t int64) ([]types.OHLCV, error) {
			return s.dashboard.OHLCV(ctx, address, tf, f, t)
		})
		if err == nil {
			out = make([]types.OHLCV, 0, len(rows))
			for _, r := range rows {
				out = append(out, r.OHLCV())
			}
		}
	}
	if err != nil {
		return nil, errs.UpstreamUnavailableErr("readapi.GetOHLCV", err)
	}

	kvcache.SetJSON(ctx, s.cache, key, out, s.ttls.OHLCVUpstream)
	return out, nil
}

// GetTrades reads the most recent swaps for address. When the token
// hasn't finished its historical backfill yet, a background backfill is
// kicked and whatever is already persisted is returned as-is.
func (s *Service) GetTrades(ctx context.Context, address string, limit int) ([]types.Trade, error) {
	if limit <= 0 || limit > tradesReadLimit {
		limit = tradesReadLimit
	}

	key := kvcache.Key("trades", address, fmt.Sprint(limit))
	var cached []types.Trade
	if kvcache.GetJSON(ctx, s.cache, key, &cached) {
		return cached, nil
	}

	status, err := s.syncStatus.Get(ctx, address)
	if err != nil {
		return nil, errs.InternalErr("readapi.GetTrades", err)
	}
	if status == nil || !status.SwapsSynced {
		if s.swapSync != nil {
			s.swapSync.KickHistorical(address)
		}
	}

	rows, err := s.swaps.ListByToken(ctx, address, limit)
	if err != nil {
		return nil, errs.InternalErr("readapi.GetTrades", err)
	}

	solPrice := 0.0
	if s.sol != nil {
		solPrice = s.sol.GetPriceSync()
	}

	out := make([]types.Trade, 0, len(rows))
	for _, r := range rows {
		otherUSD := r.SolAmount * solPrice
		out = append(out, types.Trade{
			TxHash:         r.TxHash,
			Timestamp:      r.Timestamp.UnixMilli(),
			Type:           r.Type,
			Wallet:         r.WalletAddress,
			TokenAmount:    r.TokenAmount,
			TokenAmountUSD: r.TotalValueUSD,
			OtherAmount:    r.SolAmount,
			OtherSymbol:    "SOL",
			OtherAmountUSD: otherUSD,
			PriceUSD:       r.PriceUSD,
			TotalValueUSD:  r.TotalValueUSD,
		})
	}

	kvcache.SetJSON(ctx, s.cache, key, out, s.ttls.Trades)
	return out, nil
}

// GetHolders returns Feed-M's holder stats for address, cached for 60s.
func (s *Service) GetHolders(ctx context.Context, address string) (*feeds.HolderStats, error) {
	key := kvcache.Key("holders", address)
	var cached feeds.HolderStats
	if kvcache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	stats, err := s.metadata.GetHolders(ctx, address)
	if err != nil {
		return nil, errs.UpstreamUnavailableErr("readapi.GetHolders", err)
	}

	kvcache.SetJSON(ctx, s.cache, key, stats, s.ttls.Holders)
	return stats, nil
}

// TokenStats is GetStats's response: a pulse_token snapshot plus a
// locally-derived 24h traded-value figure from token_swap, which can
// diverge from the upstream-reported Volume24h on a pulse token whose
// only activity is what this system has itself observed.
type TokenStats struct {
	types.PulseTokenOut
	Volume24hSwaps float64 `json:"volume_24h_swaps"`
}

// GetStats returns a pulse token's snapshot plus a 24h swap-value
// aggregate.
func (s *Service) GetStats(ctx context.Context, address string) (*TokenStats, error) {
	key := kvcache.Key("stats", address)
	var cached TokenStats
	if kvcache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	p, err := s.pulseTokens.Get(ctx, address)
	if err != nil {
		return nil, errs.InternalErr("readapi.GetStats", err)
	}
	if p == nil {
		return nil, errs.NotFoundErr("readapi.GetStats", fmt.Errorf("no pulse token for %s", address))
	}

	since := time.Now().Add(-24 * time.Hour)
	sum, err := s.swaps.SumValueSince(ctx, address, since)
	if err != nil {
		return nil, errs.InternalErr("readapi.GetStats", err)
	}

	out := &TokenStats{PulseTokenOut: p.Out(), Volume24hSwaps: sum}
	kvcache.SetJSON(ctx, s.cache, key, out, s.ttls.Stats)
	return out, nil
}

// Supply is Feed-G's circulating/total supply for a coin id, cached at
// the 300s TTL the table reserves for it.
type Supply struct {
	Circulating float64 `json:"circulating"`
	Total       float64 `json:"total"`
}

// GetSupply returns circulating/total supply for coinID, the one C10
// read named by the TTL table without its own dedicated bullet entry
// (Feed-G has no other consumer in this system).
func (s *Service) GetSupply(ctx context.Context, coinID string) (*Supply, error) {
	if s.supply == nil {
		return nil, errs.NotFoundErr("readapi.GetSupply", fmt.Errorf("supply client disabled"))
	}

	key := kvcache.Key("supply", coinID)
	var cached Supply
	if kvcache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	circ, total, err := s.supply.Supply(ctx, coinID)
	if err != nil {
		return nil, errs.UpstreamUnavailableErr("readapi.GetSupply", err)
	}

	out := &Supply{Circulating: circ, Total: total}
	kvcache.SetJSON(ctx, s.cache, key, out, s.ttls.Supply)
	return out, nil
}
