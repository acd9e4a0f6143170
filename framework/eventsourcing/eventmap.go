package eventsourcing

import "context"

type routeVariant int

const (
	variantCreate routeVariant = iota
	variantUpdate
	variantDelete
	variantCustom
)

type route[P any, K comparable] struct {
	variant routeVariant

	keyFn           KeyFunc[K]
	projectFn       ProjectFunc[P]
	shouldOverwrite func(*P) bool
	createIfMissing func() bool
	customFn        func(ctx context.Context, pctx *ProjectionContext) error
}

// EventMap is the static routing table of C2: immutable once built, it
// maps an event kind to one of the Create/Update/Delete/Custom handler
// variants. It is shared, read-only, for the lifetime of a projector.
type EventMap[P any, K comparable] struct {
	routes map[string]route[P, K]
}

// Handle looks up event's kind and, if registered, invokes the matching
// handler variant against d. It reports whether a handler was registered
// for this kind; a missing kind is a silent no-op.
func (m *EventMap[P, K]) Handle(ctx context.Context, pctx *ProjectionContext, event EventEnvelope, d *MapDispatcher[P, K]) (bool, error) {
	r, ok := m.routes[event.Body.EventType()]
	if !ok {
		return false, nil
	}

	switch r.variant {
	case variantCreate:
		key := r.keyFn(event)
		if err := d.OnCreate(ctx, pctx, key, r.projectFn, r.shouldOverwrite); err != nil {
			return true, err
		}
	case variantUpdate:
		key := r.keyFn(event)
		if err := d.OnUpdate(ctx, pctx, key, r.projectFn, r.createIfMissing); err != nil {
			return true, err
		}
	case variantDelete:
		key := r.keyFn(event)
		if _, err := d.OnDelete(ctx, pctx, key); err != nil {
			return true, err
		}
	case variantCustom:
		if err := d.OnCustom(ctx, pctx, r.customFn); err != nil {
			return true, err
		}
	}
	return true, nil
}

// MapBuilder is the declarative DSL producing an EventMap: register one
// handler per event kind, then Build() once all registrations are made.
type MapBuilder[P any, K comparable] struct {
	routes map[string]route[P, K]
}

// NewMapBuilder constructs an empty MapBuilder.
func NewMapBuilder[P any, K comparable]() *MapBuilder[P, K] {
	return &MapBuilder[P, K]{routes: make(map[string]route[P, K])}
}

// Create registers the Create handler variant for eventKind. shouldOverwrite
// governs what happens when a row already exists for the event's key: nil
// or a false result means the event is silently ignored for that key.
func (b *MapBuilder[P, K]) Create(eventKind string, keyFn KeyFunc[K], projectFn ProjectFunc[P], shouldOverwrite func(*P) bool) *MapBuilder[P, K] {
	b.routes[eventKind] = route[P, K]{
		variant:         variantCreate,
		keyFn:           keyFn,
		projectFn:       projectFn,
		shouldOverwrite: shouldOverwrite,
	}
	return b
}

// Update registers the Update handler variant for eventKind.
// createIfMissing governs whether a missing row is created in place of
// being ignored.
func (b *MapBuilder[P, K]) Update(eventKind string, keyFn KeyFunc[K], projectFn ProjectFunc[P], createIfMissing func() bool) *MapBuilder[P, K] {
	b.routes[eventKind] = route[P, K]{
		variant:         variantUpdate,
		keyFn:           keyFn,
		projectFn:       projectFn,
		createIfMissing: createIfMissing,
	}
	return b
}

// Delete registers the Delete handler variant for eventKind.
func (b *MapBuilder[P, K]) Delete(eventKind string, keyFn KeyFunc[K]) *MapBuilder[P, K] {
	b.routes[eventKind] = route[P, K]{
		variant: variantDelete,
		keyFn:   keyFn,
	}
	return b
}

// Custom registers the Custom handler variant for eventKind: fn owns its
// own store interactions and is simply awaited.
func (b *MapBuilder[P, K]) Custom(eventKind string, fn func(ctx context.Context, pctx *ProjectionContext) error) *MapBuilder[P, K] {
	b.routes[eventKind] = route[P, K]{
		variant:  variantCustom,
		customFn: fn,
	}
	return b
}

// Build finalizes the map. The returned EventMap is immutable; further
// calls to the builder do not affect it.
func (b *MapBuilder[P, K]) Build() *EventMap[P, K] {
	routes := make(map[string]route[P, K], len(b.routes))
	for k, v := range b.routes {
		routes[k] = v
	}
	return &EventMap[P, K]{routes: routes}
}
