// Package httpfeed is the shared HTTP plumbing every pull-side C1 client
// (Feed-M, Feed-D, Feed-B, Feed-G) is built on: rate limiting, circuit
// breaking, provider-health recording and errs.Kind mapping in one place,
// so each feed package is left with just its endpoint shapes.
package httpfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pulseintel/solpulse/internal/breaker"
	"github.com/pulseintel/solpulse/internal/errs"
	"github.com/pulseintel/solpulse/internal/infrastructure/httpclient"
	"github.com/pulseintel/solpulse/internal/net/ratelimit"
	"github.com/pulseintel/solpulse/internal/telemetry/metrics"
)

// Client wraps one upstream feed's base URL, API key, rate limiter slot
// and circuit breaker registration.
type Client struct {
	Name       string
	BaseURL    string
	APIKey     string
	Pool       *httpclient.ClientPool
	Limiter    *ratelimit.Limiter
	Breaker    *breaker.Manager
	Health     *metrics.ProviderHealth
	APIKeyName string // request header the key is sent under, e.g. "X-API-Key"
}

// New builds a Client with the package's default pool tuning: bounded
// concurrency, jittered retries, 10s request timeout.
func New(name, baseURL, apiKey string, limiter *ratelimit.Limiter, br *breaker.Manager) *Client {
	pool := httpclient.NewClientPool(httpclient.ClientConfig{
		MaxConcurrency: 8,
		RequestTimeout: 10 * time.Second,
		JitterRange:    [2]int{0, 50},
		MaxRetries:     2,
		BackoffBase:    250 * time.Millisecond,
		BackoffMax:     4 * time.Second,
		UserAgent:      "solpulse/1.0",
	})
	return &Client{
		Name:    name,
		BaseURL: baseURL,
		APIKey:  apiKey,
		Pool:    pool,
		Limiter: limiter,
		Breaker: br,
		Health:  metrics.NewProviderHealth(name),
	}
}

// Enabled reports whether this feed is configured; an empty API key
// disables a client.
func (c *Client) Enabled() bool {
	return c.APIKey != "" || c.APIKeyName == ""
}

// GetJSON performs a rate-limited, breaker-wrapped GET against path with
// query params and decodes the JSON response into dst. HTTP status and
// transport failures are mapped to errs.Kind.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dst interface{}) error {
	op := fmt.Sprintf("%s.GetJSON(%s)", c.Name, path)

	if !c.Enabled() {
		return errs.UpstreamUnavailableErr(op, fmt.Errorf("%s: no API key configured", c.Name))
	}

	if err := c.Limiter.Wait(ctx, c.Name); err != nil {
		return errs.CancelledErr(op, err)
	}

	start := time.Now()
	result, err := c.Breaker.Execute(c.Name, func() (interface{}, error) {
		return c.doGet(ctx, path, query)
	})

	if err != nil {
		c.Health.RecordRequest(false, time.Since(start))
		return classifyError(op, err)
	}
	c.Health.RecordRequest(true, time.Since(start))

	body := result.([]byte)
	if err := json.Unmarshal(body, dst); err != nil {
		return errs.BadResponseErr(op, err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" && c.APIKeyName != "" {
		req.Header.Set(c.APIKeyName, c.APIKey)
	}

	resp, err := c.Pool.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.NotFoundErr("httpfeed.doGet", fmt.Errorf("%s: 404", u))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.RateLimitedErr("httpfeed.doGet", fmt.Errorf("%s: 429", u))
	}
	if resp.StatusCode >= 500 {
		return nil, errs.UpstreamUnavailableErr("httpfeed.doGet", fmt.Errorf("%s: %d", u, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, errs.BadResponseErr("httpfeed.doGet", fmt.Errorf("%s: %d", u, resp.StatusCode))
	}

	return body, nil
}

func classifyError(op string, err error) error {
	if e, ok := err.(*errs.Error); ok {
		return e
	}
	return errs.UpstreamUnavailableErr(op, err)
}
