// Package repository provides StoreSession backends for the projector
// core: in-memory (tests, examples), PostgreSQL, and MongoDB.
package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/liquidprojections/projector/framework/eventsourcing"
)

// InMemoryConfig configures an InMemoryStore.
type InMemoryConfig struct {
	// MaxRows caps the total number of projection rows across all
	// tables (0 = unlimited). Insert returns an error once reached.
	MaxRows int
}

// DefaultInMemoryConfig returns the zero-value (unlimited) config.
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{}
}

type rowKey struct {
	table string
	key   string
}

// InMemoryStore is the shared backing map behind every session an
// InMemoryStoreSessionFactory produces. Rows only become visible to new
// sessions once a session Commits; Rollback (or a batch failure before
// Commit) leaves the store untouched, mirroring a real transactional
// store's isolation.
type InMemoryStore struct {
	config InMemoryConfig
	mu     sync.Mutex
	rows   map[rowKey][]byte
	state  map[string]*eventsourcing.ProjectorState
}

// NewInMemoryStore builds an empty InMemoryStore.
func NewInMemoryStore(config InMemoryConfig) *InMemoryStore {
	return &InMemoryStore{
		config: config,
		rows:   make(map[rowKey][]byte),
		state:  make(map[string]*eventsourcing.ProjectorState),
	}
}

// InMemoryStoreSessionFactory produces InMemoryStoreSessions against one
// shared InMemoryStore.
type InMemoryStoreSessionFactory struct {
	store *InMemoryStore
}

// NewInMemoryStoreSessionFactory builds a factory over store.
func NewInMemoryStoreSessionFactory(store *InMemoryStore) *InMemoryStoreSessionFactory {
	return &InMemoryStoreSessionFactory{store: store}
}

// NewSession implements eventsourcing.StoreSessionFactory.
func (f *InMemoryStoreSessionFactory) NewSession(ctx context.Context) (eventsourcing.StoreSession, error) {
	return &InMemoryStoreSession{store: f.store, pendingRows: make(map[rowKey]pendingRow)}, nil
}

type pendingRow struct {
	data    []byte
	deleted bool
}

// InMemoryStoreSession is a unit-of-work against an InMemoryStore. Writes
// are staged in pendingRows/pendingState and only applied to the shared
// store on Commit; Rollback (or simply never committing) discards them.
type InMemoryStoreSession struct {
	store *InMemoryStore

	began        bool
	pendingRows  map[rowKey]pendingRow
	pendingState *eventsourcing.ProjectorState
}

func (s *InMemoryStoreSession) BeginTransaction(ctx context.Context) error {
	s.began = true
	return nil
}

func (s *InMemoryStoreSession) Load(ctx context.Context, table string, key string) ([]byte, bool, error) {
	if row, ok := s.pendingRows[rowKey{table, key}]; ok {
		if row.deleted {
			return nil, false, nil
		}
		cp := make([]byte, len(row.data))
		copy(cp, row.data)
		return cp, true, nil
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	data, ok := s.store.rows[rowKey{table, key}]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (s *InMemoryStoreSession) Insert(ctx context.Context, table string, key string, data []byte) error {
	if s.store.config.MaxRows > 0 {
		s.store.mu.Lock()
		n := len(s.store.rows)
		s.store.mu.Unlock()
		if n >= s.store.config.MaxRows {
			if _, exists := s.store.rows[rowKey{table, key}]; !exists {
				return fmt.Errorf("in-memory store limit reached: max %d rows", s.store.config.MaxRows)
			}
		}
	}
	s.pendingRows[rowKey{table, key}] = pendingRow{data: data}
	return nil
}

func (s *InMemoryStoreSession) Delete(ctx context.Context, table string, key string) error {
	s.pendingRows[rowKey{table, key}] = pendingRow{deleted: true}
	return nil
}

func (s *InMemoryStoreSession) Reattach(ctx context.Context, table string, key string, data []byte) error {
	s.pendingRows[rowKey{table, key}] = pendingRow{data: data}
	return nil
}

func (s *InMemoryStoreSession) FindState(ctx context.Context, stateKey string) (*eventsourcing.ProjectorState, bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	state, ok := s.store.state[stateKey]
	if !ok {
		return nil, false, nil
	}
	cp := *state
	return &cp, true, nil
}

func (s *InMemoryStoreSession) AddState(ctx context.Context, state *eventsourcing.ProjectorState) error {
	cp := *state
	s.pendingState = &cp
	return nil
}

// Flush is a no-op: pending writes are already staged in the session and
// only reach the shared store on Commit.
func (s *InMemoryStoreSession) Flush(ctx context.Context) error {
	return nil
}

func (s *InMemoryStoreSession) Commit(ctx context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for k, row := range s.pendingRows {
		if row.deleted {
			delete(s.store.rows, k)
			continue
		}
		s.store.rows[k] = row.data
	}
	if s.pendingState != nil {
		s.store.state[s.pendingState.StateKey] = s.pendingState
	}
	s.pendingRows = make(map[rowKey]pendingRow)
	s.pendingState = nil
	return nil
}

// Rollback discards every staged write. Safe to call after a failed
// BeginTransaction or a successful Commit.
func (s *InMemoryStoreSession) Rollback(ctx context.Context) error {
	s.pendingRows = make(map[rowKey]pendingRow)
	s.pendingState = nil
	return nil
}
