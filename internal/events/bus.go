// Package events provides the in-process event bus used to broadcast sync,
// analysis, and recommendation lifecycle changes to interested subscribers
// (the websocket stream, primarily).
package events

import (
	"sync"
	"time"
)

// EventType identifies a category of event.
type EventType string

const (
	SyncStarted           EventType = "sync.started"
	SyncCompleted         EventType = "sync.completed"
	SyncFailed            EventType = "sync.failed"
	AnalysisStarted       EventType = "analysis.started"
	AnalysisCompleted     EventType = "analysis.completed"
	AnalysisFailed        EventType = "analysis.failed"
	RecommendationApplied EventType = "recommendation.applied"
	PricesRefreshed       EventType = "prices.refreshed"
	TenantUpdated         EventType = "tenant.updated"
)

// AllEventTypes lists every event type a subscriber can ask for.
var AllEventTypes = []EventType{
	SyncStarted,
	SyncCompleted,
	SyncFailed,
	AnalysisStarted,
	AnalysisCompleted,
	AnalysisFailed,
	RecommendationApplied,
	PricesRefreshed,
	TenantUpdated,
}

// Event is a single bus message.
type Event struct {
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers run on the publisher's
// goroutine and must not block; slow consumers buffer on their own side.
type Handler func(*Event)

// Bus is a process-wide publish/subscribe fanout. The zero value is not
// usable; create one with NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type. There is no unsubscribe;
// subscribers live for the process lifetime.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to every subscriber of its type. Delivery is
// synchronous and in subscription order.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Emit is a convenience wrapper that builds and publishes an event from a
// typed payload.
func (b *Bus) Emit(module string, data EventData) {
	b.Publish(&Event{
		Type:      data.EventType(),
		Module:    module,
		Timestamp: time.Now().UTC(),
		Data:      data.ToMap(),
	})
}
