package eventsourcing

import (
	"context"
	"time"

	"github.com/liquidprojections/projector/framework/metrics"
	"github.com/liquidprojections/projector/framework/observability"
)

// PersistStateBehavior controls when BatchDriver writes the projector's
// checkpoint state row.
type PersistStateBehavior int

const (
	// EveryBatch writes state after every batch, clean or not.
	EveryBatch PersistStateBehavior = iota
	// DirtyBatch writes state only when at least one event in the batch
	// was actually handled, or the batch is the last of its page (the
	// latter also holds unconditionally while a batch is being retried).
	DirtyBatch
	// LastBatchOfPage writes state only for the final batch formed from
	// a Handle call's input (or, again, while retrying).
	LastBatchOfPage
)

// EnrichStateFunc lets a caller attach arbitrary projector-specific data
// to the state row about to be persisted, given the batch that produced
// it. Most projectors never need this; it exists for projectors that
// track more than a bare checkpoint.
type EnrichStateFunc func(state *ProjectorState, batch []Transaction)

// BatchDriverOption configures a BatchDriver at construction.
type BatchDriverOption[P any, K comparable] func(*batchDriverOptions[P, K])

type batchDriverOptions[P any, K comparable] struct {
	batchSize            int
	persistStateBehavior PersistStateBehavior
	enrichState          EnrichStateFunc
	exceptionPolicy      ExceptionPolicy
	metrics              *metrics.Metrics
	tracer               *observability.TracingManager
	logger               Logger
}

// WithBatchSize caps the number of transactions projected under a single
// store transaction. The default is 1000.
func WithBatchSize[P any, K comparable](n int) BatchDriverOption[P, K] {
	return func(o *batchDriverOptions[P, K]) { o.batchSize = n }
}

// WithPersistStateBehavior overrides the default EveryBatch behavior.
func WithPersistStateBehavior[P any, K comparable](b PersistStateBehavior) BatchDriverOption[P, K] {
	return func(o *batchDriverOptions[P, K]) { o.persistStateBehavior = b }
}

// WithEnrichState attaches a function that augments the state row before
// it is persisted.
func WithEnrichState[P any, K comparable](fn EnrichStateFunc) BatchDriverOption[P, K] {
	return func(o *batchDriverOptions[P, K]) { o.enrichState = fn }
}

// WithExceptionPolicy overrides the default AbortPolicy.
func WithExceptionPolicy[P any, K comparable](policy ExceptionPolicy) BatchDriverOption[P, K] {
	return func(o *batchDriverOptions[P, K]) { o.exceptionPolicy = policy }
}

// WithMetrics attaches an instrument set recording batches, transactions,
// events, retries, and checkpoint writes as this driver runs.
func WithMetrics[P any, K comparable](m *metrics.Metrics) BatchDriverOption[P, K] {
	return func(o *batchDriverOptions[P, K]) { o.metrics = m }
}

// WithTracer attaches a TracingManager whose spans wrap each batch and
// transaction this driver projects.
func WithTracer[P any, K comparable](tm *observability.TracingManager) BatchDriverOption[P, K] {
	return func(o *batchDriverOptions[P, K]) { o.tracer = tm }
}

// WithLogger attaches a Logger. The default discards everything.
func WithLogger[P any, K comparable](logger Logger) BatchDriverOption[P, K] {
	return func(o *batchDriverOptions[P, K]) { o.logger = logger }
}

// BatchDriver (C5) is the transactional backbone of a projector: it slices
// an incoming run of transactions into batches, runs each batch under its
// own StoreSession transaction through a RetryController, and persists
// checkpoint state according to the configured PersistStateBehavior.
type BatchDriver[P any, K comparable] struct {
	sessions   StoreSessionFactory
	dispatcher *MapDispatcher[P, K]
	stateKey   string
	opts       batchDriverOptions[P, K]
	retry      *RetryController
}

// NewBatchDriver builds a BatchDriver projecting through dispatcher,
// opening one StoreSession per batch from sessions, and persisting its
// checkpoint state under stateKey.
func NewBatchDriver[P any, K comparable](
	sessions StoreSessionFactory,
	dispatcher *MapDispatcher[P, K],
	stateKey string,
	opts ...BatchDriverOption[P, K],
) (*BatchDriver[P, K], error) {
	if sessions == nil {
		return nil, NewConfigurationError("store session factory must not be nil")
	}
	if dispatcher == nil {
		return nil, NewConfigurationError("dispatcher must not be nil")
	}
	if stateKey == "" {
		return nil, NewConfigurationError("state key must not be empty")
	}

	o := batchDriverOptions[P, K]{
		batchSize:            1000,
		persistStateBehavior: EveryBatch,
		logger:               noopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize < 1 {
		return nil, NewConfigurationError("batch size must be at least 1")
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}

	retry := NewRetryController(o.exceptionPolicy)
	retry.SetMetrics(o.metrics)

	return &BatchDriver[P, K]{
		sessions:   sessions,
		dispatcher: dispatcher,
		stateKey:   stateKey,
		opts:       o,
		retry:      retry,
	}, nil
}

// Handle filters transactions down to those past the projector's last
// persisted checkpoint, slices the remainder into batches of at most the
// configured batch size, and runs each in turn. A cancellation observed
// between batches (including before the first one) simply stops further
// batches and returns nil, per spec; a cancellation observed mid-batch
// propagates as an error from the failing retry.Handle call below.
func (d *BatchDriver[P, K]) Handle(ctx context.Context, transactions []Transaction) error {
	if checkCancelled(ctx) != nil {
		return nil
	}

	lastCheckpoint, err := d.lastCheckpoint(ctx)
	if err != nil {
		return err
	}

	pending := make([]Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.Checkpoint > lastCheckpoint {
			pending = append(pending, t)
		}
	}

	batches := formBatches(pending, d.opts.batchSize)
	for i, batch := range batches {
		if checkCancelled(ctx) != nil {
			return nil
		}
		isLastOfPage := i == len(batches)-1
		if err := d.retry.Handle(ctx, batch, isLastOfPage, d.projectBatch); err != nil {
			return err
		}
	}
	return nil
}

func formBatches(transactions []Transaction, size int) [][]Transaction {
	if size < 1 {
		size = 1
	}
	var batches [][]Transaction
	for i := 0; i < len(transactions); i += size {
		end := i + size
		if end > len(transactions) {
			end = len(transactions)
		}
		batches = append(batches, transactions[i:end])
	}
	return batches
}

func (d *BatchDriver[P, K]) lastCheckpoint(ctx context.Context) (int64, error) {
	session, err := d.sessions.NewSession(ctx)
	if err != nil {
		return 0, err
	}
	defer session.Rollback(ctx)

	if err := session.BeginTransaction(ctx); err != nil {
		return 0, err
	}
	state, ok, err := session.FindState(ctx, d.stateKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return state.Checkpoint, nil
}

// projectBatch runs one attempt at projecting batch under a single store
// transaction. isLastOfPage is true both for the actual last batch of the
// page and for any batch currently under retry, per the resolved
// persist-on-retry rule. On any failure the dispatcher's cache (and its
// children's) is cleared, since cached values may now describe rows a
// rolled-back transaction never wrote.
func (d *BatchDriver[P, K]) projectBatch(ctx context.Context, batch []Transaction, isLastOfPage bool) error {
	started := time.Now()
	d.opts.metrics.IncrementActiveBatches(ctx)
	defer d.opts.metrics.DecrementActiveBatches(ctx)

	err := d.opts.tracer.TraceBatch(ctx, len(batch), isLastOfPage, func(ctx context.Context) error {
		return d.runBatch(ctx, batch, isLastOfPage)
	})

	d.opts.metrics.RecordBatch(ctx, len(batch), time.Since(started), err == nil)
	if err != nil && !IsCancellation(err) {
		d.opts.logger.Error("projector %s: batch of %d transactions failed: %v", d.stateKey, len(batch), err)
		d.dispatcher.ClearCache()
		return AsProjectionFailure(err, "projector failed to project transaction batch.").WithBatch(d.stateKey, batch)
	}
	if err != nil {
		d.opts.logger.Warn("projector %s: batch of %d transactions cancelled", d.stateKey, len(batch))
		d.dispatcher.ClearCache()
		return err
	}
	d.opts.logger.Debug("projector %s: projected batch of %d transactions in %v", d.stateKey, len(batch), time.Since(started))
	return nil
}

func (d *BatchDriver[P, K]) runBatch(ctx context.Context, batch []Transaction, isLastOfPage bool) (err error) {
	session, sessErr := d.sessions.NewSession(ctx)
	if sessErr != nil {
		return sessErr
	}

	if err = session.BeginTransaction(ctx); err != nil {
		return err
	}

	dirty := false
	var lastCheckpoint int64
	for _, txn := range batch {
		if cancelErr := checkCancelled(ctx); cancelErr != nil {
			_ = session.Rollback(ctx)
			return cancelErr
		}

		pctx := &ProjectionContext{
			TransactionID:      txn.ID,
			StreamID:           txn.StreamID,
			Checkpoint:         txn.Checkpoint,
			Timestamp:          txn.Timestamp,
			TransactionHeaders: txn.Headers,
			Session:            session,
		}

		txnErr := d.opts.tracer.TraceTransaction(ctx, txn.ID, txn.Checkpoint, func(ctx context.Context) error {
			for i := range txn.Events {
				envelope := txn.Events[i]
				pctx.EventHeaders = envelope.Headers
				projErr := d.opts.tracer.TraceHandler(ctx, envelope.Body.EventType(), func(ctx context.Context) error {
					return d.dispatcher.ProjectEvent(ctx, pctx, envelope)
				})
				if projErr != nil {
					d.opts.metrics.RecordEvent(ctx, envelope.Body.EventType(), pctx.WasHandled())
					if IsCancellation(projErr) {
						return projErr
					}
					return AsProjectionFailure(projErr, "projector failed to project transaction.").WithTransaction(txn.ID, &envelope)
				}
				d.opts.metrics.RecordEvent(ctx, envelope.Body.EventType(), pctx.WasHandled())
			}
			return nil
		})
		if txnErr != nil {
			_ = session.Rollback(ctx)
			return txnErr
		}

		d.opts.metrics.RecordTransaction(ctx)
		dirty = dirty || pctx.WasHandled()
		lastCheckpoint = txn.Checkpoint
	}

	if len(batch) > 0 && d.shouldPersistState(isLastOfPage, dirty) {
		state := &ProjectorState{
			StateKey:      d.stateKey,
			Checkpoint:    lastCheckpoint,
			LastUpdateUTC: time.Now().UTC(),
		}
		if d.opts.enrichState != nil {
			d.opts.enrichState(state, batch)
		}
		if err = session.AddState(ctx, state); err != nil {
			_ = session.Rollback(ctx)
			return err
		}
		d.opts.metrics.RecordCheckpointWrite(ctx)
	}

	if err = session.Flush(ctx); err != nil {
		_ = session.Rollback(ctx)
		return err
	}
	if err = session.Commit(ctx); err != nil {
		return err
	}
	return nil
}

func (d *BatchDriver[P, K]) shouldPersistState(isLastOfPage, dirty bool) bool {
	switch d.opts.persistStateBehavior {
	case DirtyBatch:
		return dirty || isLastOfPage
	case LastBatchOfPage:
		return isLastOfPage
	default:
		return true
	}
}
