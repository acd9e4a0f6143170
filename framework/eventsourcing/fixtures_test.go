package eventsourcing

import (
	"context"
	"encoding/json"

	"github.com/liquidprojections/projector/framework/events"
)

// orderProjection is the projection type exercised across this package's
// tests: a minimal keyed row with a name, mutated by create/rename events.
type orderProjection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func orderFactory() *orderProjection { return &orderProjection{} }

func orderSetIdentity(value *orderProjection, key string) { value.ID = key }

func orderKeyToString(key string) string { return key }

// jsonMapper is a minimal stand-in for repository.JSONMapper, kept local
// so this package's tests don't need to import the adapters package.
type jsonMapper struct{}

func (jsonMapper) ToRow(value *orderProjection) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonMapper) FromRow(data []byte) (*orderProjection, error) {
	v := &orderProjection{}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// createdEvent, renamedEvent, deletedEvent are the event bodies dispatched
// in tests below, each carrying the order id as its AggregateID.
type createdEvent struct {
	*events.BaseEvent
	Name string
}

func newCreated(id, name string) *createdEvent {
	return &createdEvent{BaseEvent: events.NewBaseEvent("order.created", id), Name: name}
}

type renamedEvent struct {
	*events.BaseEvent
	Name string
}

func newRenamed(id, name string) *renamedEvent {
	return &renamedEvent{BaseEvent: events.NewBaseEvent("order.renamed", id), Name: name}
}

type deletedEvent struct {
	*events.BaseEvent
}

func newDeleted(id string) *deletedEvent {
	return &deletedEvent{BaseEvent: events.NewBaseEvent("order.deleted", id)}
}

// unregisteredEvent carries a kind no orderEventMap route matches, for
// exercising the EventMap's silent-no-op contract.
type unregisteredEvent struct {
	*events.BaseEvent
}

func newUnregisteredEvent(id string) *unregisteredEvent {
	return &unregisteredEvent{BaseEvent: events.NewBaseEvent("order.unregistered", id)}
}

// cancelTriggerEvent routes to a Custom handler that cancels the context
// it is given, for exercising mid-batch cancellation.
type cancelTriggerEvent struct {
	*events.BaseEvent
}

func newCancelTrigger(id string) *cancelTriggerEvent {
	return &cancelTriggerEvent{BaseEvent: events.NewBaseEvent("cancel.trigger", id)}
}

func envelope(body events.Event) EventEnvelope {
	return EventEnvelope{Body: body, Headers: map[string]interface{}(body.Metadata())}
}

func txn(id, streamID string, checkpoint int64, bodies ...events.Event) Transaction {
	envs := make([]EventEnvelope, 0, len(bodies))
	for _, b := range bodies {
		envs = append(envs, envelope(b))
	}
	return Transaction{
		ID:         id,
		StreamID:   streamID,
		Checkpoint: checkpoint,
		Events:     envs,
	}
}

// orderEventMap builds the standard create/rename/delete routing used by
// most tests below: unconditional overwrite on collision, no
// create-on-missing-update, accept-all filter left to dispatcher options.
func orderEventMap() *EventMap[orderProjection, string] {
	b := NewMapBuilder[orderProjection, string]()
	b.Create("order.created",
		func(e EventEnvelope) string { return e.Body.AggregateID() },
		func(ctx context.Context, pctx *ProjectionContext, e EventEnvelope, v *orderProjection) error {
			v.Name = e.Body.(*createdEvent).Name
			return nil
		},
		func(*orderProjection) bool { return true },
	)
	b.Update("order.renamed",
		func(e EventEnvelope) string { return e.Body.AggregateID() },
		func(ctx context.Context, pctx *ProjectionContext, e EventEnvelope, v *orderProjection) error {
			v.Name = e.Body.(*renamedEvent).Name
			return nil
		},
		func() bool { return false },
	)
	b.Delete("order.deleted", func(e EventEnvelope) string { return e.Body.AggregateID() })
	return b.Build()
}

// memStoreSession is a minimal StoreSession over a shared in-process map,
// used where the package's tests need a backend simpler than a full
// repository.InMemoryStore: writes are staged per session (and visible to
// that session's own Load), then applied to the shared maps on Commit or
// dropped on Rollback.
type memStoreSession struct {
	rows    map[string][]byte
	states  map[string]*ProjectorState
	staged  map[string][]byte
	deleted map[string]bool
	state   *ProjectorState
	failAt  string // operation name that should fail, for error-path tests
}

func newMemBackend() (rows map[string][]byte, states map[string]*ProjectorState) {
	return make(map[string][]byte), make(map[string]*ProjectorState)
}

type memSessionFactory struct {
	rows   map[string][]byte
	states map[string]*ProjectorState
}

func newMemSessionFactory() *memSessionFactory {
	rows, states := newMemBackend()
	return &memSessionFactory{rows: rows, states: states}
}

func (f *memSessionFactory) NewSession(ctx context.Context) (StoreSession, error) {
	return &memStoreSession{
		rows:    f.rows,
		states:  f.states,
		staged:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}, nil
}

func rowKeyFor(table, key string) string { return table + "\x00" + key }

func (s *memStoreSession) BeginTransaction(ctx context.Context) error { return nil }

func (s *memStoreSession) Load(ctx context.Context, table, key string) ([]byte, bool, error) {
	rk := rowKeyFor(table, key)
	if data, ok := s.staged[rk]; ok {
		return data, true, nil
	}
	if s.deleted[rk] {
		return nil, false, nil
	}
	data, ok := s.rows[rk]
	return data, ok, nil
}

func (s *memStoreSession) Insert(ctx context.Context, table, key string, data []byte) error {
	rk := rowKeyFor(table, key)
	s.staged[rk] = data
	delete(s.deleted, rk)
	return nil
}

func (s *memStoreSession) Delete(ctx context.Context, table, key string) error {
	rk := rowKeyFor(table, key)
	delete(s.staged, rk)
	s.deleted[rk] = true
	return nil
}

func (s *memStoreSession) Reattach(ctx context.Context, table, key string, data []byte) error {
	return s.Insert(ctx, table, key, data)
}

func (s *memStoreSession) FindState(ctx context.Context, stateKey string) (*ProjectorState, bool, error) {
	st, ok := s.states[stateKey]
	if !ok {
		return nil, false, nil
	}
	cp := *st
	return &cp, true, nil
}

func (s *memStoreSession) AddState(ctx context.Context, state *ProjectorState) error {
	cp := *state
	s.state = &cp
	return nil
}

func (s *memStoreSession) Flush(ctx context.Context) error { return nil }

func (s *memStoreSession) Commit(ctx context.Context) error {
	for rk, data := range s.staged {
		s.rows[rk] = data
	}
	for rk := range s.deleted {
		delete(s.rows, rk)
	}
	if s.state != nil {
		s.states[s.state.StateKey] = s.state
	}
	return nil
}

func (s *memStoreSession) Rollback(ctx context.Context) error {
	s.staged = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.state = nil
	return nil
}
