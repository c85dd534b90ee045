// Package eventbridge fans the orchestrator's event bus out to external
// dashboards over WebSocket. It is the optional, read-only side channel
// spec §6 alludes to: every subscribed topic is re-published verbatim as a
// JSON text frame to every currently connected client, best-effort.
package eventbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/aiorch/core/internal/eventbus"
)

// DefaultTopics is the set of orchestrator topics a dashboard typically
// wants: lifecycle plus cascade progress, but not the high-frequency
// request_start/request_complete pair (those are better scraped from
// Prometheus than pushed over a socket).
var DefaultTopics = []string{
	eventbus.TopicRequestReceived,
	eventbus.TopicModelSelected,
	eventbus.TopicResponseEvaluated,
	eventbus.TopicCircuitStateChanged,
	eventbus.TopicCascadeStarted,
	eventbus.TopicCascadeStepComplete,
	eventbus.TopicCascadeComplete,
}

// message is the envelope written to every connected client.
type message struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge subscribes to a set of eventbus topics and fans published events
// out to every connected WebSocket client as a JSON text frame.
type Bridge struct {
	bus    eventbus.Bus
	logger *zap.Logger
	topics []string

	mu      sync.Mutex
	clients map[*client]struct{}

	unsubscribe []func()
}

type client struct {
	conn *websocket.Conn
	send chan message
}

// New builds a Bridge over bus, subscribing to topics (DefaultTopics if nil).
// Subscriptions are installed immediately; ServeHTTP can be mounted whenever
// convenient afterward.
func New(bus eventbus.Bus, topics []string, logger *zap.Logger) *Bridge {
	if topics == nil {
		topics = DefaultTopics
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{bus: bus, logger: logger, topics: topics, clients: make(map[*client]struct{})}
	for _, topic := range topics {
		topic := topic
		unsub := bus.Subscribe(topic, func(ctx context.Context, t string, payload any) {
			b.broadcast(t, payload)
		})
		b.unsubscribe = append(b.unsubscribe, unsub)
	}
	return b
}

// ServeHTTP upgrades the request to a WebSocket and streams events to it
// until the client disconnects or the request context is cancelled. It
// accepts no inbound messages; the connection is write-only from the
// bridge's side.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn("eventbridge: accept failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan message, 64)}
	b.addClient(c)
	defer b.removeClient(c)

	ctx := r.Context()
	defer conn.Close(websocket.StatusNormalClosure, "bridge closing")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (b *Bridge) addClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Bridge) removeClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// broadcast delivers msg to every connected client's buffered send channel,
// dropping it for any client whose buffer is full rather than blocking the
// event bus's own dispatch goroutine.
func (b *Bridge) broadcast(topic string, payload any) {
	msg := message{Topic: topic, Payload: payload, Timestamp: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.logger.Warn("eventbridge: dropping event for slow client", zap.String("topic", topic))
		}
	}
}

// Close unsubscribes from the event bus and disconnects every client.
func (b *Bridge) Close() {
	for _, unsub := range b.unsubscribe {
		unsub()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "bridge closing")
	}
}
