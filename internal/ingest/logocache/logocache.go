// Package logocache resolves a token's logo URI to something a browser
// can load directly: metadata feeds frequently hand back an ipfs://<cid>
// reference, which needs materializing against one of several public IPFS
// gateways. Grounded on internal/breaker's circuit-breaker fallback-chain
// pattern, generalized from "provider" to "gateway" — each gateway is its
// own breaker so a single slow/dead gateway doesn't poison the others,
// with golang.org/x/sync/singleflight coalescing concurrent resolutions
// of the same CID so a burst of new-token events for the same collection
// doesn't fan out into N identical gateway fetches.
package logocache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pulseintel/solpulse/internal/breaker"
	"github.com/pulseintel/solpulse/internal/infrastructure/httpclient"

	"github.com/rs/zerolog"
)

type Cache struct {
	gateways []string
	pool     *httpclient.ClientPool
	breakers *breaker.Manager
	sf       singleflight.Group

	mu       sync.RWMutex
	resolved map[string]string
}

func New(gateways []string, timeout time.Duration, log zerolog.Logger) *Cache {
	pool := httpclient.NewClientPool(httpclient.ClientConfig{
		MaxConcurrency: 16,
		RequestTimeout: timeout,
		JitterRange:    [2]int{0, 25},
		MaxRetries:     1,
		BackoffBase:    200 * time.Millisecond,
		BackoffMax:     time.Second,
		UserAgent:      "solpulse/1.0",
	})

	br := breaker.NewManager(log)
	for i := range gateways {
		name := gatewayName(i)
		chain := make([]string, 0, len(gateways)-1)
		for j := range gateways {
			if j != i {
				chain = append(chain, gatewayName(j))
			}
		}
		br.Register(breaker.DefaultConfig(name), chain)
	}

	return &Cache{
		gateways: gateways,
		pool:     pool,
		breakers: br,
		resolved: make(map[string]string),
	}
}

func gatewayName(i int) string { return fmt.Sprintf("gateway-%d", i) }

// Resolve returns a directly fetchable URL for uri. Non-IPFS URIs pass
// through unchanged. IPFS URIs are resolved against the gateway list,
// coalescing concurrent callers for the same CID, and the result is
// cached for the process lifetime (IPFS content is immutable by CID).
func (c *Cache) Resolve(ctx context.Context, uri string) (string, error) {
	cid, isIPFS := extractCID(uri)
	if !isIPFS {
		return uri, nil
	}

	c.mu.RLock()
	if cached, ok := c.resolved[cid]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.sf.Do(cid, func() (interface{}, error) {
		return c.fetchFirstReachable(ctx, cid)
	})
	if err != nil {
		return "", err
	}

	resolvedURL := v.(string)
	c.mu.Lock()
	c.resolved[cid] = resolvedURL
	c.mu.Unlock()
	return resolvedURL, nil
}

// Peek returns a previously resolved URL for uri without performing any
// network fetch. Used by enrichment paths that must never retrigger a
// gateway probe. A non-IPFS uri is reported resolved to itself; an
// IPFS uri not yet resolved reports ok=false.
func (c *Cache) Peek(uri string) (string, bool) {
	cid, isIPFS := extractCID(uri)
	if !isIPFS {
		return uri, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.resolved[cid]
	return v, ok
}

func (c *Cache) fetchFirstReachable(ctx context.Context, cid string) (string, error) {
	if len(c.gateways) == 0 {
		return "", fmt.Errorf("logocache: no gateways configured")
	}

	var lastErr error
	for i, gw := range c.gateways {
		url := strings.TrimRight(gw, "/") + "/ipfs/" + cid
		_, err := c.breakers.Execute(gatewayName(i), func() (interface{}, error) {
			return nil, c.probe(ctx, url)
		})
		if err == nil {
			return url, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("logocache: all gateways failed for %s: %w", cid, lastErr)
}

func (c *Cache) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.pool.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}

// extractCID pulls the content id out of an ipfs:// URI or an
// already-gatewayed /ipfs/<cid> path. Returns ok=false for anything else
// (http(s) URLs that are already directly fetchable).
func extractCID(uri string) (cid string, ok bool) {
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		return strings.TrimPrefix(uri, "ipfs://"), true
	case strings.Contains(uri, "/ipfs/"):
		parts := strings.SplitN(uri, "/ipfs/", 2)
		if len(parts) == 2 && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	default:
		return "", false
	}
}
