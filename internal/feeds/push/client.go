// Package push implements Feed-P: the live trade/lifecycle-event
// WebSocket C4 subscribes to. The reconnect state machine and message
// loop generalize an exchange WebSocket client's backoff/resubscribe
// idiom from L1/L2 order-book channels to launchpad
// new-token/trade/migration channels, with an exact reconnect backoff
// policy and an LRU that bounds the tracked per-token trade subscriptions
// (evicting a mint unsubscribes its trade stream).
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/types"
)

// State names the push client's connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSubscribing  State = "subscribing"
	StateStreaming    State = "streaming"
	StateBackoff      State = "backoff"
)

const (
	initialBackoff     = time.Second
	maxBackoff         = 60 * time.Second
	maxConsecutiveFail = 10
	trackedTokenCap    = 100
)

// Client is Feed-P.
type Client struct {
	url string
	log zerolog.Logger

	mu      sync.RWMutex
	state   State
	conn    *websocket.Conn
	tracked *lruSet // tokens currently subscribed to a trade stream
}

func New(wsURL string, log zerolog.Logger) feeds.PushClient {
	return &Client{
		url:     wsURL,
		log:     log.With().Str("component", "feed-push").Logger(),
		state:   StateDisconnected,
		tracked: newLRUSet(trackedTokenCap),
	}
}

func (c *Client) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return string(c.state)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drives the reconnect state machine until ctx is cancelled or the
// consecutive-failure cap is hit: backoff doubles from 1s up to a 60s
// cap, and after 10 consecutive failed attempts the ingester pauses and
// must be externally restarted.
func (c *Client) Run(ctx context.Context, handler feeds.PushHandler) error {
	backoff := initialBackoff
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		default:
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			consecutiveFailures++
			c.log.Warn().Err(err).Int("attempt", consecutiveFailures).Msg("feed-push connect failed")
			if consecutiveFailures >= maxConsecutiveFail {
				c.setState(StateDisconnected)
				return fmt.Errorf("feed-push: %d consecutive connect failures, giving up", consecutiveFailures)
			}
			c.setState(StateBackoff)
			if !c.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)

		c.setState(StateSubscribing)
		if err := c.replaySubscriptions(); err != nil {
			c.log.Warn().Err(err).Msg("feed-push subscription replay failed")
		}

		c.setState(StateStreaming)
		backoff = initialBackoff
		consecutiveFailures = 0

		err = c.streamLoop(ctx, handler)
		c.closeConn()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		c.log.Warn().Err(err).Msg("feed-push stream ended, reconnecting")
		c.setState(StateBackoff)
		if !c.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid feed-push URL: %w", err)
	}

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("feed-push dial: %w", err)
	}
	return conn, nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// SubscribeTokenTrades adds mint to the tracked set and, if already
// connected, sends the subscription immediately. Eviction from the
// bounded LRU unsubscribes the evicted token.
func (c *Client) SubscribeTokenTrades(mint string) error {
	evicted, ok := c.tracked.Add(mint)
	if ok && evicted != "" {
		_ = c.sendUnsubscribe(evicted)
	}
	return c.sendSubscribe(mint)
}

func (c *Client) UnsubscribeTokenTrades(mint string) error {
	c.tracked.Remove(mint)
	return c.sendUnsubscribe(mint)
}

func (c *Client) replaySubscriptions() error {
	_ = c.sendGlobalSubscriptions()
	for _, mint := range c.tracked.Items() {
		if err := c.sendSubscribe(mint); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendGlobalSubscriptions() error {
	if err := c.send(wireMessage{Method: "subscribe", Channel: "new-token"}); err != nil {
		return err
	}
	return c.send(wireMessage{Method: "subscribe", Channel: "migration"})
}

func (c *Client) sendSubscribe(mint string) error {
	return c.send(wireMessage{Method: "subscribe", Channel: "token-trade", Keys: []string{mint}})
}

func (c *Client) sendUnsubscribe(mint string) error {
	return c.send(wireMessage{Method: "unsubscribe", Channel: "token-trade", Keys: []string{mint}})
}

type wireMessage struct {
	Method  string   `json:"method"`
	Channel string   `json:"channel"`
	Keys    []string `json:"keys,omitempty"`
}

func (c *Client) send(msg wireMessage) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("feed-push: not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) streamLoop(ctx context.Context, handler feeds.PushHandler) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if err := c.dispatch(data, handler); err != nil {
			c.log.Error().Err(err).Msg("feed-push: dropping unparsable event")
		}
	}
}

type wireEvent struct {
	Channel            string  `json:"channel"`
	Mint               string  `json:"mint"`
	Symbol             string  `json:"symbol"`
	Name               string  `json:"name"`
	URI                string  `json:"uri"`
	Creator            string  `json:"creator"`
	InitialBuy         float64 `json:"initial_buy"`
	MarketCapSOL       float64 `json:"market_cap_sol"`
	VSolInBondingCurve float64 `json:"v_sol_in_bonding_curve"`
	Type               string  `json:"type"`
	TokenAmount        float64 `json:"token_amount"`
	SolAmount          float64 `json:"sol_amount"`
	Trader             string  `json:"trader"`
	Pool               string  `json:"pool"`
	Signature          string  `json:"signature"`
	Timestamp          int64   `json:"ts"` // ms
}

func (c *Client) dispatch(data []byte, handler feeds.PushHandler) error {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	ts := time.UnixMilli(ev.Timestamp)

	switch ev.Channel {
	case "new-token":
		handler.OnNewToken(feeds.NewTokenEvent{
			Mint:               ev.Mint,
			Symbol:             ev.Symbol,
			Name:               ev.Name,
			URI:                ev.URI,
			Creator:            ev.Creator,
			InitialBuy:         ev.InitialBuy,
			MarketCapSOL:       ev.MarketCapSOL,
			VSolInBondingCurve: ev.VSolInBondingCurve,
			Signature:          ev.Signature,
			Timestamp:          ts,
		})
	case "token-trade":
		handler.OnTrade(feeds.TradeEvent{
			Mint:               ev.Mint,
			Type:               types.SwapSide(ev.Type),
			TokenAmount:        ev.TokenAmount,
			SolAmount:          ev.SolAmount,
			VSolInBondingCurve: ev.VSolInBondingCurve,
			MarketCapSOL:       ev.MarketCapSOL,
			Trader:             ev.Trader,
			Signature:          ev.Signature,
			Timestamp:          ts,
		})
	case "migration":
		handler.OnMigration(feeds.MigrationEvent{
			Mint:      ev.Mint,
			Pool:      ev.Pool,
			Signature: ev.Signature,
			Timestamp: ts,
		})
	default:
		return fmt.Errorf("unknown channel %q", ev.Channel)
	}
	return nil
}
