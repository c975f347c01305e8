package solprice

import (
	"context"

	"github.com/pulseintel/solpulse/internal/feeds"
)

// WrappedSOLMint is the canonical wrapped-SOL mint address; every feed
// that prices tokens understands it.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// metadataProvider asks Feed-M for the wrapped-SOL price.
type metadataProvider struct{ client feeds.MetadataClient }

func FromMetadata(client feeds.MetadataClient) Provider { return metadataProvider{client} }

func (p metadataProvider) Name() string { return "metadata" }

func (p metadataProvider) SOLPriceUSD(ctx context.Context) (float64, error) {
	return p.client.GetPrice(ctx, WrappedSOLMint)
}

// dashboardProvider asks Feed-B's multi-price endpoint for wrapped SOL.
type dashboardProvider struct{ client feeds.DashboardClient }

func FromDashboard(client feeds.DashboardClient) Provider { return dashboardProvider{client} }

func (p dashboardProvider) Name() string { return "dashboard" }

func (p dashboardProvider) SOLPriceUSD(ctx context.Context) (float64, error) {
	prices, err := p.client.MultiPrice(ctx, []string{WrappedSOLMint})
	if err != nil {
		return 0, err
	}
	return prices[WrappedSOLMint], nil
}
