// Package kvcache is C3: a short-TTL string cache in front of C10's read
// services, backed by Redis when configured and falling back to an
// in-process map otherwise, generalized to context-aware calls and
// typed JSON helpers over a plain string cache.
package kvcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache is the TTL key/value store C10 sits in front of.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// TTLs holds the per-resource TTL durations C10 reads cache entries with.
type TTLs struct {
	TokenDetail    time.Duration
	OHLCVDB        time.Duration
	OHLCVUpstream  time.Duration
	Trades         time.Duration
	Holders        time.Duration
	Stats          time.Duration
	Trending       time.Duration
	Supply         time.Duration
}

// DefaultTTLs returns the default TTL value for each cached resource.
func DefaultTTLs() TTLs {
	return TTLs{
		TokenDetail:   60 * time.Second,
		OHLCVDB:       5 * time.Second,
		OHLCVUpstream: 30 * time.Second,
		Trades:        8 * time.Second,
		Holders:       60 * time.Second,
		Stats:         15 * time.Second,
		Trending:      60 * time.Second,
		Supply:        300 * time.Second,
	}
}

// New builds an in-memory cache.
func New() Cache { return &memory{m: make(map[string]entry)} }

// NewRedis builds a cache backed by Redis at addr.
func NewRedis(addr string) Cache {
	return &redisCache{r: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewAuto picks Redis when addr is non-empty, in-memory otherwise.
func NewAuto(addr string) Cache {
	if addr != "" {
		return NewRedis(addr)
	}
	return New()
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

func (c *memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

func (c *memory) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

type redisCache struct{ r *redis.Client }

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}

func (r *redisCache) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_ = r.r.Del(ctx, key).Err()
}

// GetJSON unmarshals the cached value for key into dst, reporting whether
// it was present.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) bool {
	b, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false
	}
	return true
}

// SetJSON marshals val and stores it under key with the given TTL. Marshal
// errors are swallowed: a cache-set failure should never fail the read
// path that produced val.
func SetJSON(ctx context.Context, c Cache, key string, val interface{}, ttl time.Duration) {
	b, err := json.Marshal(val)
	if err != nil {
		return
	}
	c.Set(ctx, key, b, ttl)
}

// Key builds a namespaced cache key from parts, e.g. Key("token", address).
func Key(parts ...string) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return fmt.Sprintf("solpulse:%s", key)
}
