// Package breaker wraps github.com/sony/gobreaker per upstream feed so a
// failing provider trips independently of the others, with an optional
// fallback chain to try while the primary is open, generalized from
// named exchanges to this backend's five upstream feeds.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/pulseintel/solpulse/internal/telemetry/metrics"
)

// Config tunes one feed's breaker.
type Config struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ErrorRateThreshold  float64 // percent, 0-100
	ConsecutiveFailures uint32
}

func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ErrorRateThreshold:  30.0,
		ConsecutiveFailures: 3,
	}
}

// Manager owns one breaker per feed plus each feed's fallback chain.
type Manager struct {
	mu        sync.RWMutex
	breakers  map[string]*gobreaker.CircuitBreaker
	fallbacks map[string][]string
	log       zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		fallbacks: make(map[string][]string),
		log:       log,
	}
}

// Register installs a breaker for feed, with an ordered list of feed names
// to try (via Execute) once this one trips open.
func (m *Manager) Register(cfg Config, fallbackChain []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallbacks[cfg.Name] = fallbackChain

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests >= 10 {
				rate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
				if rate >= cfg.ErrorRateThreshold {
					return true
				}
			}
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn().Str("feed", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}

	m.breakers[cfg.Name] = gobreaker.NewCircuitBreaker(settings)
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
}

// Execute runs fn through feed's breaker. If the breaker is open, it walks
// the fallback chain (breakers that are not themselves open) instead of
// failing outright, implementing the upstream_unavailable recovery policy.
func (m *Manager) Execute(feed string, fn func() (interface{}, error)) (interface{}, error) {
	m.mu.RLock()
	b, ok := m.breakers[feed]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("breaker: no breaker registered for %q", feed)
	}

	result, err := b.Execute(fn)
	if err != nil && b.State() == gobreaker.StateOpen {
		return m.executeFallback(feed, fn)
	}
	return result, err
}

func (m *Manager) executeFallback(feed string, fn func() (interface{}, error)) (interface{}, error) {
	m.mu.RLock()
	chain := append([]string(nil), m.fallbacks[feed]...)
	m.mu.RUnlock()

	for _, next := range chain {
		m.mu.RLock()
		b, ok := m.breakers[next]
		m.mu.RUnlock()
		if !ok || b.State() == gobreaker.StateOpen {
			continue
		}
		if result, err := b.Execute(fn); err == nil {
			return result, nil
		}
	}
	return nil, fmt.Errorf("breaker: feed %q open, all fallbacks exhausted", feed)
}

// State reports the breaker's current state string, used by readiness and
// provider-health reporting.
func (m *Manager) State(feed string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.breakers[feed]; ok {
		return b.State().String()
	}
	return "unknown"
}
