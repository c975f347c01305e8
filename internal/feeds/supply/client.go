// Package supply implements Feed-G: circulating/total supply lookup by
// coin id, served as-is through readapi's GetSupply; nothing else in this
// system consumes it.
package supply

import (
	"context"

	"github.com/pulseintel/solpulse/internal/breaker"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/feeds/httpfeed"
	"github.com/pulseintel/solpulse/internal/net/ratelimit"
)

type Client struct {
	http *httpfeed.Client
}

func New(baseURL, apiKey string, limiter *ratelimit.Limiter, br *breaker.Manager) feeds.SupplyClient {
	c := httpfeed.New("supply", baseURL, apiKey, limiter, br)
	c.APIKeyName = "x-cg-api-key"
	return &Client{http: c}
}

func (c *Client) Supply(ctx context.Context, coinID string) (float64, float64, error) {
	var resp struct {
		MarketData struct {
			CirculatingSupply float64 `json:"circulating_supply"`
			TotalSupply       float64 `json:"total_supply"`
		} `json:"market_data"`
	}
	if err := c.http.GetJSON(ctx, "/coins/"+coinID, nil, &resp); err != nil {
		return 0, 0, err
	}
	return resp.MarketData.CirculatingSupply, resp.MarketData.TotalSupply, nil
}
