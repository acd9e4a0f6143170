// Package events defines the minimal domain-event contract the projector
// core dispatches on. Producing, publishing, and subscribing to events is
// the event source's job — an external collaborator per spec §1 — so this
// package carries only the shape a transaction's events must have, plus a
// convenience base type for building fixtures and example events.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a single immutable fact. Its EventType is the dispatch key an
// EventMap routes on.
type Event interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
	Metadata() EventMetadata
}

// EventMetadata carries free-form, per-event metadata (correlation id,
// causation id, user id, and whatever else a producer attaches).
type EventMetadata map[string]interface{}

// Get returns the value stored under key, if any.
func (m EventMetadata) Get(key string) (interface{}, bool) {
	val, ok := m[key]
	return val, ok
}

// Set stores value under key.
func (m EventMetadata) Set(key string, value interface{}) {
	m[key] = value
}

// CorrelationID returns the "correlation_id" metadata entry, or "".
func (m EventMetadata) CorrelationID() string {
	return m.stringEntry("correlation_id")
}

// CausationID returns the "causation_id" metadata entry, or "".
func (m EventMetadata) CausationID() string {
	return m.stringEntry("causation_id")
}

// UserID returns the "user_id" metadata entry, or "".
func (m EventMetadata) UserID() string {
	return m.stringEntry("user_id")
}

func (m EventMetadata) stringEntry(key string) string {
	val, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}

// BaseEvent is a ready-made Event implementation for fixtures, examples,
// and event-store adapters that don't need a bespoke struct per event
// kind.
type BaseEvent struct {
	eventID     string
	eventType   string
	occurredAt  time.Time
	aggregateID string
	metadata    EventMetadata
}

// NewBaseEvent builds a BaseEvent of the given type for aggregateID,
// stamped with a fresh id and the current time.
func NewBaseEvent(eventType, aggregateID string) *BaseEvent {
	return &BaseEvent{
		eventID:     fmt.Sprintf("evt-%s", uuid.NewString()),
		eventType:   eventType,
		occurredAt:  time.Now().UTC(),
		aggregateID: aggregateID,
		metadata:    make(EventMetadata),
	}
}

// WithMetadata attaches a metadata entry and returns e for chaining.
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata.Set(key, value)
	return e
}

func (e *BaseEvent) EventID() string        { return e.eventID }
func (e *BaseEvent) EventType() string       { return e.eventType }
func (e *BaseEvent) OccurredAt() time.Time   { return e.occurredAt }
func (e *BaseEvent) AggregateID() string     { return e.aggregateID }
func (e *BaseEvent) Metadata() EventMetadata { return e.metadata }
