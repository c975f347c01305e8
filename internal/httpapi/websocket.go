package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/fanout"
)

// wsUpgrader allows any origin: this server has no auth layer of its own
// (see the package doc), so origin checking is left to the reverse proxy
// that sits in front of it in any real deployment.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsOutBuffer    = 256
)

// wsRequest is one client->server control message. Address carries the
// token:<address> subscribe target; Base/Quote/TF carry the
// ohlcv:<base>:<quote>:<tf> and trades:<base>:<quote> targets.
type wsRequest struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Base    string `json:"base,omitempty"`
	Quote   string `json:"quote,omitempty"`
	TF      string `json:"tf,omitempty"`
}

// wsConn owns one client's subscription set and serializes every write
// to the underlying connection through out, since gorilla/websocket
// forbids concurrent writers on the same Conn.
type wsConn struct {
	conn *websocket.Conn
	hub  *fanout.Hub
	out  chan fanout.Event
	log  zerolog.Logger

	mu   sync.Mutex
	subs map[string]*fanout.Subscriber
}

// handleWebSocket upgrades the request and drives the fan-out protocol
// for the connection's lifetime: a read loop applies client subscribe/
// unsubscribe messages, and a write loop relays whatever the hub
// delivers on those topics back to the client as JSON.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsConn{
		conn: conn,
		hub:  s.hub,
		out:  make(chan fanout.Event, wsOutBuffer),
		log:  s.log,
		subs: make(map[string]*fanout.Subscriber),
	}

	go c.writeLoop()
	c.readLoop()
}

func (c *wsConn) readLoop() {
	defer func() {
		c.closeSubs()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		var req wsRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}
		c.apply(req)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.out:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// apply maps one client->server control message onto a hub topic,
// per the fan-out protocol's subscribe:<kind>/unsubscribe:<kind> pairs.
func (c *wsConn) apply(req wsRequest) {
	switch req.Type {
	case "subscribe:token":
		c.subscribe(fanout.TopicToken(req.Address))
	case "unsubscribe:token":
		c.unsubscribe(fanout.TopicToken(req.Address))
	case "subscribe:pulse":
		c.subscribe(fanout.TopicPulse)
	case "unsubscribe:pulse":
		c.unsubscribe(fanout.TopicPulse)
	case "subscribe:dashboard":
		c.subscribe(fanout.TopicDashboard)
	case "unsubscribe:dashboard":
		c.unsubscribe(fanout.TopicDashboard)
	case "subscribe:ohlcv":
		c.subscribe(fanout.TopicOHLCV(req.Base, req.Quote, req.TF))
	case "unsubscribe:ohlcv":
		c.unsubscribe(fanout.TopicOHLCV(req.Base, req.Quote, req.TF))
	case "subscribe:trades":
		c.subscribe(fanout.TopicTrades(req.Base, req.Quote))
	case "unsubscribe:trades":
		c.unsubscribe(fanout.TopicTrades(req.Base, req.Quote))
	default:
		c.log.Warn().Str("type", req.Type).Msg("unrecognized websocket message")
	}
}

func (c *wsConn) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[topic]; ok {
		return
	}
	sub := c.hub.Subscribe(topic)
	c.subs[topic] = sub
	go c.relay(sub)
}

func (c *wsConn) unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

// relay forwards every event the subscription receives to the
// connection's shared write channel, dropping rather than blocking a
// client that can't keep up — the same at-most-once policy the hub
// itself applies to its subscribers.
func (c *wsConn) relay(sub *fanout.Subscriber) {
	for ev := range sub.C() {
		select {
		case c.out <- ev:
		default:
		}
	}
}

// closeSubs tears down every subscription still open when the
// connection's read loop ends, whether from a client close or a
// protocol error.
func (c *wsConn) closeSubs() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*fanout.Subscriber)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
