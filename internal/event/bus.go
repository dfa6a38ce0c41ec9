// Package event provides the in-process publish/subscribe bus the central
// registry uses to decouple the alert lifecycle from whatever reacts to it
// (metrics, log taps, future notifiers).
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics published by the central registry.
const (
	TopicAlertOpened = "alert.opened"
	TopicAlertClosed = "alert.closed"
)

// Event is one bus message.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// Handler consumes events. Handlers must not assume exclusive ownership of
// the payload.
type Handler func(ctx context.Context, e Event)

// Publisher is the write side of the bus, the surface producers depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	PublishAsync(ctx context.Context, e Event)
}

// Compile-time interface guard.
var _ Publisher = (*Bus)(nil)

// Bus is a topic-keyed fan-out with panic isolation per handler.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
	all      map[int]Handler
	logger   *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string]map[int]Handler),
		all:      make(map[int]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for one topic and returns its unsubscribe
// function.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	b.handlers[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers the event synchronously to all matching handlers. A
// panicking handler is logged and skipped; the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	for _, h := range b.snapshot(e.Topic) {
		b.invoke(ctx, h, e)
	}
	return nil
}

// PublishAsync delivers the event on a separate goroutine.
func (b *Bus) PublishAsync(ctx context.Context, e Event) {
	handlers := b.snapshot(e.Topic)
	go func() {
		for _, h := range handlers {
			b.invoke(ctx, h, e)
		}
	}()
}

func (b *Bus) snapshot(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Handler, 0, len(b.handlers[topic])+len(b.all))
	for _, h := range b.handlers[topic] {
		out = append(out, h)
	}
	for _, h := range b.all {
		out = append(out, h)
	}
	return out
}

func (b *Bus) invoke(ctx context.Context, h Handler, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", e.Topic),
				zap.Any("panic", rec),
			)
		}
	}()
	h(ctx, e)
}
