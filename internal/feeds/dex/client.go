// Package dex implements Feed-D: pair discovery and token search, used as
// the second fallback in C10's GetToken chain (metadata → dex →
// dashboard).
package dex

import (
	"context"
	"net/url"

	"github.com/pulseintel/solpulse/internal/breaker"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/feeds/httpfeed"
	"github.com/pulseintel/solpulse/internal/net/ratelimit"
	"github.com/pulseintel/solpulse/internal/types"
)

type Client struct {
	http *httpfeed.Client
}

func New(baseURL, apiKey string, limiter *ratelimit.Limiter, br *breaker.Manager) feeds.DexClient {
	return &Client{http: httpfeed.New("dex", baseURL, apiKey, limiter, br)}
}

func (c *Client) GetPairsByToken(ctx context.Context, address string) ([]string, error) {
	var resp struct {
		Pairs []struct {
			PairAddress string `json:"pair_address"`
		} `json:"pairs"`
	}
	if err := c.http.GetJSON(ctx, "/tokens/"+address, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		out = append(out, p.PairAddress)
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]types.TokenLite, error) {
	q := url.Values{}
	q.Set("q", query)

	var resp struct {
		Pairs []struct {
			BaseToken struct {
				Address string `json:"address"`
				Symbol  string `json:"symbol"`
				Name    string `json:"name"`
			} `json:"base_token"`
			PriceUSD   string  `json:"price_usd"`
			Liquidity  float64 `json:"liquidity_usd"`
			Volume24h  float64 `json:"volume_24h"`
			MarketCap  float64 `json:"market_cap"`
			PriceChg24 float64 `json:"price_change_24h"`
		} `json:"pairs"`
	}
	if err := c.http.GetJSON(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}

	out := make([]types.TokenLite, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		out = append(out, types.TokenLite{
			Address:        p.BaseToken.Address,
			Symbol:         p.BaseToken.Symbol,
			Name:           p.BaseToken.Name,
			Liquidity:      p.Liquidity,
			Volume24h:      p.Volume24h,
			MarketCap:      p.MarketCap,
			PriceChange24h: p.PriceChg24,
		})
	}
	return out, nil
}
