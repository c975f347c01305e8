// Package solprice exposes the current SOL/USD price every price-derived
// computation in the system depends on: C4 turns sol_amount into
// price_usd with it, C6's price-derivation cascade tries it first.
// Grounded on the same provider-fallback-chain idiom the feed clients use
// for GetToken (try each in order, keep the last good value on total
// failure), generalized to a single scalar with a background refresh
// loop instead of a request-scoped fallback.
package solprice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider is one upstream SOL/USD price source, e.g. a CoinGecko-style
// simple-price endpoint or a DEX price feed.
type Provider interface {
	Name() string
	SOLPriceUSD(ctx context.Context) (float64, error)
}

const (
	ttl             = 30 * time.Second
	seedPrice       = 150.0 // cold-start fallback before any provider succeeds
	errLogThrottle  = time.Minute
)

// Service maintains a TTL-cached SOL/USD price backed by an ordered list
// of providers.
type Service struct {
	providers []Provider
	log       zerolog.Logger

	mu         sync.RWMutex
	price      float64
	lastGood   time.Time
	lastErrLog map[string]time.Time
}

func New(log zerolog.Logger, providers ...Provider) *Service {
	return &Service{
		providers:  providers,
		log:        log.With().Str("component", "solprice").Logger(),
		price:      seedPrice,
		lastErrLog: make(map[string]time.Time),
	}
}

// GetPrice returns the cached price if it is within TTL, otherwise
// refreshes synchronously from providers in order and returns the first
// positive result. On total failure it returns the last known value (or
// the seed value on cold start).
func (s *Service) GetPrice(ctx context.Context) float64 {
	s.mu.RLock()
	fresh := time.Since(s.lastGood) < ttl
	cached := s.price
	s.mu.RUnlock()
	if fresh {
		return cached
	}
	return s.refresh(ctx)
}

// GetPriceSync returns whatever is currently cached without attempting a
// refresh, for call sites that cannot block on an upstream call.
func (s *Service) GetPriceSync() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

func (s *Service) refresh(ctx context.Context) float64 {
	for _, p := range s.providers {
		price, err := p.SOLPriceUSD(ctx)
		if err != nil {
			s.logThrottled(p.Name(), err)
			continue
		}
		if price <= 0 {
			continue
		}
		s.mu.Lock()
		s.price = price
		s.lastGood = time.Now()
		s.mu.Unlock()
		return price
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

func (s *Service) logThrottled(provider string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastErrLog[provider]
	if ok && time.Since(last) < errLogThrottle {
		return
	}
	s.lastErrLog[provider] = time.Now()
	s.log.Warn().Err(err).Str("provider", provider).Msg("sol price provider failed")
}

// Run refreshes the cached price on a fixed interval until ctx is
// cancelled, so GetPriceSync callers on the hot path (C4's per-trade
// price_usd computation) never block on an upstream call.
func (s *Service) Run(ctx context.Context) {
	s.refresh(ctx)
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}
