// ABOUTME: In-process Publisher implementation with subscriber callbacks
// ABOUTME: Used when toolmesh is embedded without an external bus, and in tests

package bus

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives events published to a subscribed topic.
type Handler func(topic string, event any)

// InProcBus is a minimal in-process Publisher. Handlers run synchronously in
// publish order, which preserves the protocol's event ordering guarantees.
type InProcBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewInProcBus creates an empty in-process bus.
func NewInProcBus(logger *slog.Logger) *InProcBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcBus{
		handlers: make(map[string][]Handler),
		logger:   logger.With("component", "bus"),
	}
}

// Subscribe registers a handler for a topic.
func (b *InProcBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers the event to every handler subscribed to the topic.
func (b *InProcBus) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	b.logger.Debug("publishing event", "topic", topic, "subscribers", len(handlers))
	for _, h := range handlers {
		h(topic, event)
	}
	return nil
}

// Recorder is a Publisher that captures published events for assertions.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent is one captured publish call.
type RecordedEvent struct {
	Topic string
	Event any
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the event.
func (r *Recorder) Publish(_ context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Topic: topic, Event: event})
	return nil
}

// Events returns a copy of all recorded events in publish order.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}
