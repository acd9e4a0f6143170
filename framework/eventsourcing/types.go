// Package eventsourcing implements the projector core: event-map
// dispatch, batched transactional driving, and retry/exception handling
// for materializing an ordered transaction stream into keyed projections.
package eventsourcing

import (
	"time"

	"github.com/liquidprojections/projector/framework/events"
)

// EventEnvelope pairs an event body with per-event headers. The body's
// runtime event kind (EventType) is the dispatch key in an EventMap.
type EventEnvelope struct {
	Body    events.Event
	Headers map[string]interface{}
}

// Transaction is an atomic, ordered bundle of events sharing a stream
// identifier and a checkpoint. Transactions are expected to arrive with
// monotonically increasing checkpoints within a stream; this is a
// precondition the driver does not itself enforce.
type Transaction struct {
	ID         string
	StreamID   string
	Checkpoint int64
	Timestamp  time.Time
	Headers    map[string]interface{}
	Events     []EventEnvelope
}

// ProjectionContext is carried through every handler invocation for the
// events of a single transaction; BatchDriver builds one per transaction
// and updates EventHeaders for each event. WasHandled is a sticky OR: once
// true for a context it is never reset, so only MarkHandled may touch it.
type ProjectionContext struct {
	TransactionID      string
	StreamID           string
	Checkpoint         int64
	Timestamp          time.Time
	TransactionHeaders map[string]interface{}
	EventHeaders       map[string]interface{}
	Session            StoreSession

	wasHandled bool
}

// MarkHandled ORs handled into the sticky was-handled flag.
func (c *ProjectionContext) MarkHandled(handled bool) {
	c.wasHandled = c.wasHandled || handled
}

// WasHandled reports whether any event seen through this context so far
// matched a registered handler.
func (c *ProjectionContext) WasHandled() bool {
	return c.wasHandled
}

// ProjectorState is the projector's own durable bookmark: exactly one row
// per projector, keyed by StateKey. StateKey must be stored in a column
// that accepts at least 150 characters; Checkpoint is a 64-bit signed
// position.
type ProjectorState struct {
	StateKey      string
	Checkpoint    int64
	LastUpdateUTC time.Time
}
