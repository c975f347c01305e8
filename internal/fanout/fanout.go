// Package fanout is C9: an in-process, topic-scoped pub/sub hub that
// every sync engine publishes live updates to and every subscriber (the
// HTTP layer's websocket/SSE adapters) reads from. Grounded on the
// corpus's client-registry hub pattern — a per-client buffered channel
// and a non-blocking `select default:` broadcast that drops rather than
// blocks a slow reader — generalized from a single global broadcast
// channel to per-topic fan-out so a dashboard OHLCV subscriber never
// competes for buffer space with the pulse firehose.
package fanout

import (
	"sync"

	"github.com/pulseintel/solpulse/internal/telemetry/metrics"
)

// Event is one fan-out message: Type names the kind of update (e.g.
// "pulse:new-pair", "ohlcv:update"), Topic is the routing key a
// subscriber registered for, and Payload is the already-JSON-shaped body.
type Event struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const subscriberBuffer = 256

// Subscriber is a single registered reader of one topic.
type Subscriber struct {
	id    uint64
	topic string
	ch    chan Event
	hub   *Hub
}

// C returns the channel to range over for delivered events. Closed when
// the subscriber unsubscribes.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Unsubscribe removes the subscriber from its topic and closes its channel.
func (s *Subscriber) Unsubscribe() { s.hub.unsubscribe(s) }

// Hub is the fan-out registry. Zero value is not usable; use New.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*Subscriber
	nextID uint64
}

func New() *Hub {
	return &Hub{topics: make(map[string]map[uint64]*Subscriber)}
}

// Subscribe registers a new reader on topic. Topics are created lazily
// and torn down once their last subscriber leaves.
func (h *Hub) Subscribe(topic string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{
		id:    h.nextID,
		topic: topic,
		ch:    make(chan Event, subscriberBuffer),
		hub:   h,
	}

	set, ok := h.topics[topic]
	if !ok {
		set = make(map[uint64]*Subscriber)
		h.topics[topic] = set
	}
	set[sub.id] = sub
	metrics.FanoutSubscribers.WithLabelValues(topic).Set(float64(len(set)))
	return sub
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := set[sub.id]; !ok {
		return
	}
	delete(set, sub.id)
	close(sub.ch)
	metrics.FanoutSubscribers.WithLabelValues(sub.topic).Set(float64(len(set)))
	if len(set) == 0 {
		delete(h.topics, sub.topic)
	}
}

// Publish delivers ev to every current subscriber of ev.Topic. A
// subscriber whose buffer is full is skipped, not blocked and not
// disconnected — it will simply miss that one update.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.topics[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports how many readers are currently on topic, used
// by dashboard sync to skip its 1s snapshot publish when nobody is
// listening on the dashboard topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
