package eventsourcing

import "context"

// StoreSession is a unit-of-work against a relational (or document)
// backend, borrowed exclusively by one running batch for its lifetime.
// Projection values and the projector state row are both addressed by a
// table/collection name plus an opaque string key; serialization of P is
// delegated to a Mapper[P] supplied to the MapDispatcher, so one session
// can be shared by a parent MapDispatcher and any number of nested
// ChildProjectors operating on different projection types.
type StoreSession interface {
	// Load returns the raw, encoded row for key in table, or ok == false
	// if no such row exists.
	Load(ctx context.Context, table string, key string) (data []byte, ok bool, err error)
	// Insert marks the encoded row for insertion at Flush.
	Insert(ctx context.Context, table string, key string, data []byte) error
	// Delete marks the row for deletion at Flush.
	Delete(ctx context.Context, table string, key string) error
	// Reattach declares a previously loaded row a known entity in this
	// session. data is the row's current encoding, taken after the
	// handler has mutated it, and MapDispatcher relies on the session to
	// persist it with the transaction; every bundled session stores it as
	// an upsert.
	Reattach(ctx context.Context, table string, key string, data []byte) error

	// FindState returns the projector's own state row, if present.
	FindState(ctx context.Context, stateKey string) (*ProjectorState, bool, error)
	// AddState marks state for upsert at Flush.
	AddState(ctx context.Context, state *ProjectorState) error

	// Flush applies every pending Insert/Delete/Reattach/AddState
	// against the open transaction.
	Flush(ctx context.Context) error
	// BeginTransaction opens the session's single transaction. Called
	// exactly once per session before any other operation.
	BeginTransaction(ctx context.Context) error
	// Commit commits the open transaction.
	Commit(ctx context.Context) error
	// Rollback aborts the open transaction. Safe to call after Commit
	// has already failed or after BeginTransaction has failed.
	Rollback(ctx context.Context) error
}

// StoreSessionFactory produces a fresh StoreSession per batch.
// Construction may suspend (acquire a pooled connection, negotiate a
// transaction isolation level, and so on).
type StoreSessionFactory interface {
	NewSession(ctx context.Context) (StoreSession, error)
}

// Mapper encodes and decodes a projection value to and from the raw byte
// representation a StoreSession persists. Implementations typically
// marshal to JSON (as the teacher's repository.Mapper[T] does) or to BSON
// for a document store.
type Mapper[V any] interface {
	ToRow(value *V) ([]byte, error)
	FromRow(data []byte) (*V, error)
}
