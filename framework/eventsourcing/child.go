package eventsourcing

import "context"

// innerProjector is satisfied by any *MapDispatcher[P, K]; ChildProjector
// holds one behind this interface so it can nest dispatchers of unrelated
// projection types within the same parent.
type innerProjector interface {
	ProjectEvent(ctx context.Context, pctx *ProjectionContext, event EventEnvelope) error
}

// ChildProjector adapts a MapDispatcher so it can run, before its parent,
// within the same store transaction. Failures from the wrapped dispatcher
// are tagged with this projector's identity so a caller can tell which
// nesting level failed.
type ChildProjector struct {
	id    string
	inner innerProjector
}

// NewChildProjector wraps inner (typically a *MapDispatcher[P, K]) under
// the given identity.
func NewChildProjector(id string, inner innerProjector) *ChildProjector {
	return &ChildProjector{id: id, inner: inner}
}

// ClearCache discards the wrapped projector's cache, if it exposes one.
func (c *ChildProjector) ClearCache() {
	if clearer, ok := c.inner.(interface{ ClearCache() }); ok {
		clearer.ClearCache()
	}
}

// Project dispatches event through the wrapped projector. A Cancellation
// passes through untouched. A *ProjectionFailure is tagged with this
// projector's identity only if it doesn't already carry a child id — the
// innermost failing child wins. Any other error is wrapped fresh.
func (c *ChildProjector) Project(ctx context.Context, pctx *ProjectionContext, event EventEnvelope) error {
	if ctx == nil {
		return NewConfigurationError("child projector received a nil context")
	}
	if event.Body == nil {
		return NewConfigurationError("child projector received a nil event")
	}

	err := c.inner.ProjectEvent(ctx, pctx, event)
	if err == nil {
		return nil
	}
	if IsCancellation(err) {
		return err
	}
	if pf, ok := err.(*ProjectionFailure); ok {
		return pf.WithChildProjector(c.id)
	}
	return NewProjectionFailure("projector failed to project an event.", err).WithChildProjector(c.id)
}
