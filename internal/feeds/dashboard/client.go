// Package dashboard implements Feed-B: curated-token overview, OHLCV,
// multi-price and trending — the backbone of the Dashboard product
// surface and the third fallback in C10's GetToken chain.
package dashboard

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pulseintel/solpulse/internal/breaker"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/feeds/httpfeed"
	"github.com/pulseintel/solpulse/internal/net/ratelimit"
	"github.com/pulseintel/solpulse/internal/types"
)

type Client struct {
	http *httpfeed.Client
}

func New(baseURL, apiKey string, limiter *ratelimit.Limiter, br *breaker.Manager) feeds.DashboardClient {
	c := httpfeed.New("dashboard", baseURL, apiKey, limiter, br)
	c.APIKeyName = "X-API-Key"
	return &Client{http: c}
}

func (c *Client) TokenOverview(ctx context.Context, address string) (*types.TokenLite, error) {
	var resp types.TokenLite
	if err := c.http.GetJSON(ctx, "/tokens/"+address, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) OHLCV(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error) {
	q := url.Values{}
	q.Set("timeframe", string(tf))
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))

	var resp struct {
		Candles []types.OHLCV `json:"candles"`
	}
	if err := c.http.GetJSON(ctx, "/tokens/"+address+"/ohlcv", q, &resp); err != nil {
		return nil, err
	}
	return resp.Candles, nil
}

func (c *Client) MultiPrice(ctx context.Context, addresses []string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("addresses", strings.Join(addresses, ","))

	var resp map[string]struct {
		Price float64 `json:"price"`
	}
	if err := c.http.GetJSON(ctx, "/prices", q, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(resp))
	for addr, v := range resp {
		out[addr] = v.Price
	}
	return out, nil
}

func (c *Client) Trending(ctx context.Context, limit int) ([]types.TokenLite, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Tokens []types.TokenLite `json:"tokens"`
	}
	if err := c.http.GetJSON(ctx, "/trending", q, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}
