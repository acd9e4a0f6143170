package eventsourcing

import (
	"context"
	"errors"
	"testing"
)

type recordingProjector struct {
	id     string
	calls  *[]string
	err    error
	cached bool
}

func (p *recordingProjector) ProjectEvent(ctx context.Context, pctx *ProjectionContext, event EventEnvelope) error {
	*p.calls = append(*p.calls, p.id)
	return p.err
}

func (p *recordingProjector) ClearCache() { p.cached = true }

func TestChildProjector_NilContextRejected(t *testing.T) {
	c := NewChildProjector("child", &recordingProjector{calls: &[]string{}})
	var cfgErr *ConfigurationError
	err := c.Project(nil, &ProjectionContext{}, EventEnvelope{Body: newCreated("A", "foo")})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a *ConfigurationError for a nil context, got %v (%T)", err, err)
	}
}

func TestChildProjector_NilEventRejected(t *testing.T) {
	c := NewChildProjector("child", &recordingProjector{calls: &[]string{}})
	var cfgErr *ConfigurationError
	err := c.Project(context.Background(), &ProjectionContext{}, EventEnvelope{})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a *ConfigurationError for a nil event body, got %v (%T)", err, err)
	}
}

func TestChildProjector_CancellationPassesThroughUntouched(t *testing.T) {
	inner := &recordingProjector{calls: &[]string{}, err: &Cancellation{}}
	c := NewChildProjector("child", inner)
	err := c.Project(context.Background(), &ProjectionContext{}, EventEnvelope{Body: newCreated("A", "foo")})
	if !IsCancellation(err) {
		t.Fatalf("expected cancellation to pass through unwrapped, got %v", err)
	}
}

func TestChildProjector_TagsFreshFailureWithOwnID(t *testing.T) {
	inner := &recordingProjector{calls: &[]string{}, err: errors.New("boom")}
	c := NewChildProjector("inventory", inner)
	err := c.Project(context.Background(), &ProjectionContext{}, EventEnvelope{Body: newCreated("A", "foo")})

	var pf *ProjectionFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected a *ProjectionFailure, got %v (%T)", err, err)
	}
	if pf.ChildProjectorID != "inventory" {
		t.Fatalf("expected ChildProjector=inventory, got %q", pf.ChildProjectorID)
	}
}

// Innermost child wins: an already-tagged ProjectionFailure bubbling up
// through an outer ChildProjector keeps the innermost tag.
func TestChildProjector_InnermostWins(t *testing.T) {
	innermost := &recordingProjector{calls: &[]string{}, err: errors.New("boom")}
	inner := NewChildProjector("innermost", innermost)

	// Simulate an outer ChildProjector wrapping a dispatcher whose
	// ProjectEvent (via some inner child) already returned a tagged
	// failure from "innermost" — wrapping it again must not overwrite
	// that tag.
	wrapper := &recordingProjector{calls: &[]string{}}
	wrapper.err = inner.Project(context.Background(), &ProjectionContext{}, EventEnvelope{Body: newCreated("A", "foo")})
	outer := NewChildProjector("outer", wrapper)

	err := outer.Project(context.Background(), &ProjectionContext{}, EventEnvelope{Body: newCreated("A", "foo")})
	var pf *ProjectionFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected a *ProjectionFailure, got %v (%T)", err, err)
	}
	if pf.ChildProjectorID != "innermost" {
		t.Fatalf("expected the innermost tag to survive, got %q", pf.ChildProjectorID)
	}
}

func TestChildProjector_ClearCacheDelegates(t *testing.T) {
	inner := &recordingProjector{calls: &[]string{}}
	c := NewChildProjector("child", inner)
	c.ClearCache()
	if !inner.cached {
		t.Fatal("expected ClearCache to delegate to the wrapped projector")
	}
}

// Ordering: a MapDispatcher with registered children runs each of them,
// in declared order, before its own event map handler for every event.
func TestMapDispatcher_ChildrenRunBeforeParent(t *testing.T) {
	var calls []string
	firstChild := NewChildProjector("first", &recordingProjector{id: "first", calls: &calls})
	secondChild := NewChildProjector("second", &recordingProjector{id: "second", calls: &calls})

	d, factory := newTestDispatcher(t, WithChildProjectors[orderProjection, string](firstChild, secondChild))
	session, _ := factory.NewSession(context.Background())
	pctx := newPctx(session)

	if err := d.ProjectEvent(context.Background(), pctx, envelope(newCreated("A", "foo"))); err != nil {
		t.Fatalf("ProjectEvent: %v", err)
	}
	calls = append(calls, "parent")

	if len(calls) != 3 || calls[0] != "first" || calls[1] != "second" || calls[2] != "parent" {
		t.Fatalf("expected children to run in order before the parent, got %v", calls)
	}
	if !pctx.WasHandled() {
		t.Fatal("expected WasHandled true once the parent's own map matches the event")
	}
}

// A failing child stops the parent's own event map from ever running for
// that event.
func TestMapDispatcher_ChildFailureSkipsParentHandler(t *testing.T) {
	var calls []string
	failingChild := NewChildProjector("failing", &recordingProjector{id: "failing", calls: &calls, err: errors.New("boom")})

	d, factory := newTestDispatcher(t, WithChildProjectors[orderProjection, string](failingChild))
	session, _ := factory.NewSession(context.Background())
	pctx := newPctx(session)

	err := d.ProjectEvent(context.Background(), pctx, envelope(newCreated("A", "foo")))
	var pf *ProjectionFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected a *ProjectionFailure, got %v (%T)", err, err)
	}
	if pf.ChildProjectorID != "failing" {
		t.Fatalf("expected the failing child's tag, got %q", pf.ChildProjectorID)
	}
	if pctx.WasHandled() {
		t.Fatal("expected WasHandled false since the parent's own map never ran")
	}
}
