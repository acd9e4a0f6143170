package eventsourcing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liquidprojections/projector/framework/events"
)

// EventStore is an in-memory stand-in for "the event source that feeds
// transactions" — an external collaborator this module never prescribes
// an interface for (spec §1's non-goals exclude a message broker or wire
// format). It gives callers something to feed BatchDriver.Handle with,
// without standing up a real broker or database.
//
// Every call to Append assigns the next checkpoint in a single global,
// monotonically increasing sequence shared across all streams, matching
// the Transaction.Checkpoint contract BatchDriver relies on (monotonic
// across a stream, a precondition the driver does not itself enforce).
type EventStore struct {
	mu           sync.Mutex
	transactions []Transaction
	checkpoint   int64
}

// NewEventStore builds an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append appends one transaction to streamID carrying events, stamping it
// with the next checkpoint and the current time.
func (s *EventStore) Append(ctx context.Context, streamID string, headers map[string]interface{}, evts ...events.Event) (Transaction, error) {
	if err := checkCancelled(ctx); err != nil {
		return Transaction{}, err
	}

	envelopes := make([]EventEnvelope, 0, len(evts))
	for _, e := range evts {
		envelopes = append(envelopes, EventEnvelope{Body: e, Headers: e.Metadata()})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint++
	txn := Transaction{
		ID:         uuid.NewString(),
		StreamID:   streamID,
		Checkpoint: s.checkpoint,
		Timestamp:  time.Now().UTC(),
		Headers:    headers,
		Events:     envelopes,
	}
	s.transactions = append(s.transactions, txn)
	return txn, nil
}

// ReadFrom returns every transaction with checkpoint > after, in
// checkpoint order. Pass 0 to read the whole log.
func (s *EventStore) ReadFrom(ctx context.Context, after int64) ([]Transaction, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if t.Checkpoint > after {
			result = append(result, t)
		}
	}
	return result, nil
}

// All returns every transaction recorded so far, in checkpoint order.
func (s *EventStore) All(ctx context.Context) ([]Transaction, error) {
	return s.ReadFrom(ctx, 0)
}
