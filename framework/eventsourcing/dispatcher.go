package eventsourcing

import "context"

// ProjectFunc mutates value in place using event, the event currently
// being projected.
type ProjectFunc[P any] func(ctx context.Context, pctx *ProjectionContext, event EventEnvelope, value *P) error

// KeyFunc extracts a projection's key from the event currently being
// dispatched.
type KeyFunc[K comparable] func(event EventEnvelope) K

// MapDispatcher is the per-projection-type glue (C3): it loads-or-creates
// a projection via cache+store, applies the matched handler variant, and
// enforces the filter and overwrite/create-if-missing policies. One
// MapDispatcher instance is owned by exactly one BatchDriver (or nested
// inside a ChildProjector), but its StoreSession is shared with any
// sibling dispatchers running within the same batch transaction.
type MapDispatcher[P any, K comparable] struct {
	table       string
	mapper      Mapper[P]
	keyToString func(K) string
	factory     func() *P
	setIdentity func(value *P, key K)
	cache       ProjectionCache[K, P]
	filter      func(value *P) bool
	children    []*ChildProjector
	eventMap    *EventMap[P, K]
}

// DispatcherOption configures a MapDispatcher at construction.
type DispatcherOption[P any, K comparable] func(*MapDispatcher[P, K])

// WithFilter sets the predicate forwarded to OnUpdate. The default
// accepts every projection.
func WithFilter[P any, K comparable](filter func(*P) bool) DispatcherOption[P, K] {
	return func(d *MapDispatcher[P, K]) { d.filter = filter }
}

// WithCache replaces the default passthrough cache.
func WithCache[P any, K comparable](cache ProjectionCache[K, P]) DispatcherOption[P, K] {
	return func(d *MapDispatcher[P, K]) { d.cache = cache }
}

// WithChildProjectors registers child projectors to run, in the given
// order, before this dispatcher's own handler for every event.
func WithChildProjectors[P any, K comparable](children ...*ChildProjector) DispatcherOption[P, K] {
	return func(d *MapDispatcher[P, K]) { d.children = children }
}

// NewMapDispatcher builds a MapDispatcher for projection type P keyed by
// K. table names the row collection a StoreSession addresses; mapper
// encodes/decodes P; factory constructs a zero-value P for a fresh
// projection; setIdentity assigns its key exactly once, before any
// handler observes it; keyToString renders K into the opaque string key
// a StoreSession expects.
func NewMapDispatcher[P any, K comparable](
	table string,
	mapper Mapper[P],
	factory func() *P,
	setIdentity func(value *P, key K),
	keyToString func(K) string,
	eventMap *EventMap[P, K],
	opts ...DispatcherOption[P, K],
) (*MapDispatcher[P, K], error) {
	if table == "" {
		return nil, NewConfigurationError("table name must not be empty")
	}
	if mapper == nil {
		return nil, NewConfigurationError("mapper must not be nil")
	}
	if factory == nil {
		return nil, NewConfigurationError("factory must not be nil")
	}
	if setIdentity == nil {
		return nil, NewConfigurationError("setIdentity must not be nil")
	}
	if keyToString == nil {
		return nil, NewConfigurationError("keyToString must not be nil")
	}
	if eventMap == nil {
		return nil, NewConfigurationError("event map must not be nil")
	}

	d := &MapDispatcher[P, K]{
		table:       table,
		mapper:      mapper,
		keyToString: keyToString,
		factory:     factory,
		setIdentity: setIdentity,
		filter:      func(*P) bool { return true },
		eventMap:    eventMap,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cache == nil {
		d.cache = NewPassthroughCache[K, P]()
	}
	return d, nil
}

func (d *MapDispatcher[P, K]) loadOrCache(ctx context.Context, pctx *ProjectionContext, key K) (*P, error) {
	return d.cache.GetOrLoad(key, func() (*P, error) {
		raw, ok, err := pctx.Session.Load(ctx, d.table, d.keyToString(key))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return d.mapper.FromRow(raw)
	})
}

func (d *MapDispatcher[P, K]) insert(ctx context.Context, pctx *ProjectionContext, key K, value *P) error {
	raw, err := d.mapper.ToRow(value)
	if err != nil {
		return err
	}
	return pctx.Session.Insert(ctx, d.table, d.keyToString(key), raw)
}

// reattach serializes value's current state and asks the store session to
// treat key as a known, tracked entity. A live ORM would call this before
// mutating a tracked instance and rely on its own change tracking to pick
// up the mutation at flush time; this module serializes explicitly
// instead (the §9 fallback: "load by key and merge user-visible field
// changes"), so reattach runs after projectFn mutates value, carrying the
// post-mutation bytes the session actually needs to persist.
func (d *MapDispatcher[P, K]) reattach(ctx context.Context, pctx *ProjectionContext, key K, value *P) error {
	raw, err := d.mapper.ToRow(value)
	if err != nil {
		return err
	}
	return pctx.Session.Reattach(ctx, d.table, d.keyToString(key), raw)
}

// OnCreate implements the Create handler variant: load-or-create the
// projection for key; construct and insert when absent; on collision,
// re-run projectFn and persist the mutated row only when shouldOverwrite
// approves.
func (d *MapDispatcher[P, K]) OnCreate(
	ctx context.Context,
	pctx *ProjectionContext,
	key K,
	projectFn ProjectFunc[P],
	shouldOverwrite func(*P) bool,
) error {
	existing, err := d.loadOrCache(ctx, pctx, key)
	if err != nil {
		return err
	}
	if existing == nil {
		value := d.factory()
		d.setIdentity(value, key)
		if err := projectFn(ctx, pctx, value); err != nil {
			return err
		}
		if err := d.insert(ctx, pctx, key, value); err != nil {
			return err
		}
		d.cache.Add(key, value)
		return nil
	}
	if shouldOverwrite == nil || !shouldOverwrite(existing) {
		return nil
	}
	if err := projectFn(ctx, pctx, existing); err != nil {
		return err
	}
	return d.reattach(ctx, pctx, key, existing)
}

// OnUpdate implements the Update handler variant: load-or-create,
// creating when missing and createIfMissing approves; otherwise re-run
// projectFn and persist the mutated row, subject to the configured
// filter.
func (d *MapDispatcher[P, K]) OnUpdate(
	ctx context.Context,
	pctx *ProjectionContext,
	key K,
	projectFn ProjectFunc[P],
	createIfMissing func() bool,
) error {
	existing, err := d.loadOrCache(ctx, pctx, key)
	if err != nil {
		return err
	}
	if existing == nil {
		if createIfMissing == nil || !createIfMissing() {
			return nil
		}
		value := d.factory()
		d.setIdentity(value, key)
		if err := projectFn(ctx, pctx, value); err != nil {
			return err
		}
		if err := d.insert(ctx, pctx, key, value); err != nil {
			return err
		}
		d.cache.Add(key, value)
		return nil
	}
	if !d.filter(existing) {
		return nil
	}
	if err := projectFn(ctx, pctx, existing); err != nil {
		return err
	}
	return d.reattach(ctx, pctx, key, existing)
}

// OnDelete implements the Delete handler variant. It returns whether a
// row was found and removed.
func (d *MapDispatcher[P, K]) OnDelete(ctx context.Context, pctx *ProjectionContext, key K) (bool, error) {
	existing, err := d.loadOrCache(ctx, pctx, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := pctx.Session.Delete(ctx, d.table, d.keyToString(key)); err != nil {
		return false, err
	}
	d.cache.Remove(key)
	return true, nil
}

// OnCustom implements the Custom handler variant: the handler performs
// its own store interactions and is simply awaited.
func (d *MapDispatcher[P, K]) OnCustom(ctx context.Context, pctx *ProjectionContext, fn func(ctx context.Context, pctx *ProjectionContext) error) error {
	return fn(ctx, pctx)
}

// ClearCache discards every entry held by this dispatcher's cache, and
// recurses into its children. Called by the BatchDriver whenever a batch
// fails, since a rolled-back transaction may leave cached values
// describing rows that were never actually written.
func (d *MapDispatcher[P, K]) ClearCache() {
	d.cache.Clear()
	for _, child := range d.children {
		child.ClearCache()
	}
}

// ProjectEvent runs every registered child projector (in declared order,
// each before this dispatcher's own handler), then dispatches the event
// through the event map, ORing the result into pctx.WasHandled. A child
// error propagates without this dispatcher's own map ever running for
// that event.
func (d *MapDispatcher[P, K]) ProjectEvent(ctx context.Context, pctx *ProjectionContext, event EventEnvelope) error {
	for _, child := range d.children {
		if err := child.Project(ctx, pctx, event); err != nil {
			return err
		}
	}
	handled, err := d.eventMap.Handle(ctx, pctx, event, d)
	pctx.MarkHandled(handled)
	return err
}
