// Package eventbus is the in-process pub/sub the orchestrator publishes its
// lifecycle events to. Topic names are an open string set (unlike the
// closed enums elsewhere in this module) since spec §6 allows external
// collaborators to introduce their own topics; the orchestrator's own
// topics are listed as constants for convenience.
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Normative topic names from spec §6.
const (
	TopicRequestReceived     = "ai:request_received"
	TopicModelSelected       = "ai:model_selected"
	TopicRequestStart        = "llm:request_start"
	TopicRequestComplete     = "llm:request_complete"
	TopicResponseEvaluated   = "ai:response_evaluated"
	TopicCircuitStateChanged = "ai:circuit_breaker_state_changed"
	TopicCascadeStarted      = "cascade:started"
	TopicCascadeStepComplete = "cascade:step_complete"
	TopicCascadeComplete     = "cascade:complete"
)

// Handler receives a published payload. Handlers must not block; a slow
// handler delays only its own delivery, never the publisher, since Publish
// delivers to each subscriber in its own goroutine.
type Handler func(ctx context.Context, topic string, payload any)

// Bus is the injected event-bus interface the orchestrator is constructed
// with. Implementations must never require a global singleton.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any)
	Subscribe(topic string, handler Handler) (unsubscribe func())
}

// InProcessBus is the default Bus: a mutex-protected map of topic to
// subscriber list, delivering to each subscriber asynchronously so Publish
// never blocks on a slow or misbehaving handler.
type InProcessBus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
	logger      *zap.Logger
	nextID      uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// New builds an InProcessBus. logger may be nil, in which case a no-op
// logger is used.
func New(logger *zap.Logger) *InProcessBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcessBus{subscribers: make(map[string][]*subscription), logger: logger}
}

// Publish fans payload out to every subscriber of topic, each in its own
// goroutine, recovering and logging any handler panic rather than letting it
// propagate to the publisher.
func (b *InProcessBus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("eventbus: subscriber panic", zap.String("topic", topic), zap.Any("recovered", r))
				}
			}()
			h(ctx, topic, payload)
		}(sub.handler)
	}
}

// Subscribe registers handler for topic and returns a function that removes
// it.
func (b *InProcessBus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[topic] = append(b.subscribers[topic], &subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}
