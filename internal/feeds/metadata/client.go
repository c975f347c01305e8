// Package metadata implements Feed-M: metadata, OHLCV-by-pair, cursor-paged
// swaps, the pulse category lists, bonding status and holders. This is the
// primary upstream for C5 (pulse sync) and C6 (swap sync).
package metadata

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/pulseintel/solpulse/internal/breaker"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/feeds/httpfeed"
	"github.com/pulseintel/solpulse/internal/net/ratelimit"
	"github.com/pulseintel/solpulse/internal/types"
)

type Client struct {
	http *httpfeed.Client
}

func New(baseURL, apiKey string, limiter *ratelimit.Limiter, br *breaker.Manager) feeds.MetadataClient {
	c := httpfeed.New("metadata", baseURL, apiKey, limiter, br)
	c.APIKeyName = "X-API-Key"
	return &Client{http: c}
}

type priceResp struct {
	Price float64 `json:"price"`
}

func (c *Client) GetPrice(ctx context.Context, mint string) (float64, error) {
	var resp priceResp
	if err := c.http.GetJSON(ctx, "/price/"+mint, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Price, nil
}

type metadataResp struct {
	Address         string   `json:"address"`
	Symbol          string   `json:"symbol"`
	Name            string   `json:"name"`
	Decimals        int      `json:"decimals"`
	LogoURI         string   `json:"logo_uri"`
	Price           float64  `json:"price"`
	PriceChange24h  float64  `json:"price_change_24h"`
	Volume24h       float64  `json:"volume_24h"`
	MarketCap       float64  `json:"market_cap"`
	Liquidity       float64  `json:"liquidity"`
	BondingProgress *float64 `json:"bonding_progress"`
	Twitter         string   `json:"twitter"`
	Telegram        string   `json:"telegram"`
	Website         string   `json:"website"`
	Description     string   `json:"description"`
	ReplyCount      int64    `json:"reply_count"`
	TxCount         int64    `json:"tx_count"`
}

func (c *Client) GetMetadata(ctx context.Context, mint string) (*types.PulseToken, error) {
	var resp metadataResp
	if err := c.http.GetJSON(ctx, "/metadata/"+mint, nil, &resp); err != nil {
		return nil, err
	}
	return &types.PulseToken{
		Address:         resp.Address,
		Symbol:          resp.Symbol,
		Name:            resp.Name,
		Decimals:        resp.Decimals,
		LogoURI:         resp.LogoURI,
		Price:           resp.Price,
		PriceChange24h:  resp.PriceChange24h,
		Volume24h:       resp.Volume24h,
		MarketCap:       resp.MarketCap,
		Liquidity:       resp.Liquidity,
		BondingProgress: resp.BondingProgress,
		Twitter:         resp.Twitter,
		Telegram:        resp.Telegram,
		Website:         resp.Website,
		Description:     resp.Description,
		ReplyCount:      resp.ReplyCount,
		TxCount:         resp.TxCount,
		Source:          types.SourceMetadata,
	}, nil
}

func (c *Client) GetPairs(ctx context.Context, mint string) ([]string, error) {
	var resp struct {
		Pairs []string `json:"pairs"`
	}
	if err := c.http.GetJSON(ctx, "/pairs/"+mint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

func (c *Client) GetOHLCVByPair(ctx context.Context, pair string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error) {
	q := url.Values{}
	q.Set("tf", string(tf))
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))

	var resp struct {
		Candles []types.OHLCV `json:"candles"`
	}
	if err := c.http.GetJSON(ctx, "/ohlcv/"+pair, q, &resp); err != nil {
		return nil, err
	}
	return resp.Candles, nil
}

type swapResp struct {
	TxHash        string  `json:"tx_hash"`
	Timestamp     int64   `json:"timestamp"` // ms
	Type          string  `json:"type"`
	WalletAddress string  `json:"wallet_address"`
	TokenAmount   float64 `json:"token_amount"`
	SolAmount     float64 `json:"sol_amount"`
	PriceUSD      float64 `json:"price_usd"`
	UsdAmount     float64 `json:"usd_amount"`
	TotalValueUSD float64 `json:"total_value_usd"`
}

func (c *Client) GetSwaps(ctx context.Context, mint, cursor string, pageSize int) ([]feeds.Swap, string, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp struct {
		Swaps      []swapResp `json:"swaps"`
		NextCursor string     `json:"next_cursor"`
	}
	if err := c.http.GetJSON(ctx, "/swaps/"+mint, q, &resp); err != nil {
		return nil, "", err
	}

	out := make([]feeds.Swap, 0, len(resp.Swaps))
	for _, s := range resp.Swaps {
		out = append(out, feeds.Swap{
			TxHash:        s.TxHash,
			Timestamp:     time.UnixMilli(s.Timestamp),
			Type:          types.SwapSide(s.Type),
			WalletAddress: s.WalletAddress,
			TokenAmount:   s.TokenAmount,
			SolAmount:     s.SolAmount,
			PriceUSD:      s.PriceUSD,
			UsdAmount:     s.UsdAmount,
			TotalValueUSD: s.TotalValueUSD,
		})
	}
	return out, resp.NextCursor, nil
}

func (c *Client) GetNewList(ctx context.Context, limit int) ([]types.PulseToken, error) {
	return c.getCategoryList(ctx, "/list/new", limit, types.CategoryNew)
}

func (c *Client) GetGraduatingList(ctx context.Context, limit int) ([]types.PulseToken, error) {
	return c.getCategoryList(ctx, "/list/graduating", limit, types.CategoryGraduating)
}

func (c *Client) GetGraduatedList(ctx context.Context, limit int) ([]types.PulseToken, error) {
	return c.getCategoryList(ctx, "/list/graduated", limit, types.CategoryGraduated)
}

func (c *Client) getCategoryList(ctx context.Context, path string, limit int, category types.Category) ([]types.PulseToken, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Items []metadataResp `json:"items"`
	}
	if err := c.http.GetJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	out := make([]types.PulseToken, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, types.PulseToken{
			Address:         it.Address,
			Symbol:          it.Symbol,
			Name:            it.Name,
			Decimals:        it.Decimals,
			LogoURI:         it.LogoURI,
			Price:           it.Price,
			PriceChange24h:  it.PriceChange24h,
			Volume24h:       it.Volume24h,
			MarketCap:       it.MarketCap,
			Liquidity:       it.Liquidity,
			Category:        category,
			BondingProgress: it.BondingProgress,
			Twitter:         it.Twitter,
			Telegram:        it.Telegram,
			Website:         it.Website,
			Description:     it.Description,
			ReplyCount:      it.ReplyCount,
			TxCount:         it.TxCount,
			Source:          types.SourceMetadata,
		})
	}
	return out, nil
}

func (c *Client) GetBondingStatus(ctx context.Context, mint string) (float64, bool, error) {
	var resp struct {
		Progress float64 `json:"progress"`
		Migrated bool    `json:"migrated"`
	}
	if err := c.http.GetJSON(ctx, "/bonding-status/"+mint, nil, &resp); err != nil {
		return 0, false, err
	}
	return resp.Progress, resp.Migrated, nil
}

func (c *Client) GetHolders(ctx context.Context, mint string) (*feeds.HolderStats, error) {
	var resp struct {
		HolderCount int64 `json:"holder_count"`
		TopHolders  []struct {
			Address   string  `json:"address"`
			Amount    float64 `json:"amount"`
			PercentOf float64 `json:"percent_of"`
		} `json:"top_holders"`
	}
	if err := c.http.GetJSON(ctx, "/holders/"+mint, nil, &resp); err != nil {
		return nil, err
	}

	holders := make([]feeds.Holder, 0, len(resp.TopHolders))
	for _, h := range resp.TopHolders {
		holders = append(holders, feeds.Holder{Address: h.Address, Amount: h.Amount, PercentOf: h.PercentOf})
	}
	return &feeds.HolderStats{HolderCount: resp.HolderCount, TopHolders: holders}, nil
}
