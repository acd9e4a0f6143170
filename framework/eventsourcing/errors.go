package eventsourcing

import (
	"context"
	"errors"
	"fmt"
)

// ProjectionFailure is raised when a handler or store call fails while
// projecting an event. It carries enough origin information for a caller
// to tell which projector, which child (if any), which transaction and
// event, and which batch was in flight when the failure occurred.
type ProjectionFailure struct {
	Message         string
	ProjectorID     string
	ChildProjectorID string
	TransactionID   string
	Event           *EventEnvelope
	Batch           []Transaction
	Cause           error
}

func (e *ProjectionFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProjectionFailure) Unwrap() error {
	return e.Cause
}

// WithChildProjector returns a copy of the failure tagged with a
// child-projector identity, but only if one isn't already set — a
// failure is tagged by the innermost child it passes through.
func (e *ProjectionFailure) WithChildProjector(id string) *ProjectionFailure {
	if e.ChildProjectorID != "" {
		return e
	}
	tagged := *e
	tagged.ChildProjectorID = id
	return &tagged
}

// WithTransaction returns a copy of the failure tagged with the
// transaction and event that were being projected.
func (e *ProjectionFailure) WithTransaction(transactionID string, event *EventEnvelope) *ProjectionFailure {
	tagged := *e
	tagged.TransactionID = transactionID
	tagged.Event = event
	return &tagged
}

// WithBatch returns a copy of the failure tagged with the projector
// identity and the full batch under way.
func (e *ProjectionFailure) WithBatch(projectorID string, batch []Transaction) *ProjectionFailure {
	tagged := *e
	tagged.ProjectorID = projectorID
	tagged.Batch = batch
	return &tagged
}

// NewProjectionFailure wraps cause in a fresh ProjectionFailure. cause may
// be nil, in which case Error reports the message alone.
func NewProjectionFailure(message string, cause error) *ProjectionFailure {
	return &ProjectionFailure{Message: message, Cause: cause}
}

// AsProjectionFailure unwraps err into a *ProjectionFailure if it already
// is one, wrapping it fresh otherwise. Every other error, a Cancellation
// included, is wrapped; callers check IsCancellation before calling it.
func AsProjectionFailure(err error, message string) *ProjectionFailure {
	if pf, ok := err.(*ProjectionFailure); ok {
		return pf
	}
	return NewProjectionFailure(message, err)
}

// Cancellation signals a cooperative stop observed at a transaction or
// batch boundary. It is not wrapped by ProjectionFailure and must not be
// reported through an ExceptionPolicy.
type Cancellation struct {
	Cause error
}

func (e *Cancellation) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("projection cancelled: %v", e.Cause)
	}
	return "projection cancelled"
}

func (e *Cancellation) Unwrap() error {
	return e.Cause
}

// IsCancellation reports whether err is, or wraps, a Cancellation.
func IsCancellation(err error) bool {
	var c *Cancellation
	return errors.As(err, &c)
}

// checkCancelled turns a cancelled context into a *Cancellation error.
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &Cancellation{Cause: ctx.Err()}
	default:
		return nil
	}
}

// ConfigurationError signals invalid arguments supplied at construction
// time (a nil event map, mapper or session factory, an empty table name or
// state key, batch size < 1). A nil cache is not an error: the dispatcher
// falls back to a PassthroughCache.
// It is raised synchronously from the relevant constructor and is never
// swallowed by the retry machinery.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "invalid projector configuration: " + e.Message
}

// NewConfigurationError builds a ConfigurationError with the given
// message.
func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{Message: message}
}

// RetryInconsistency signals that an ExceptionPolicy returned
// RetryIndividual while the controller was already bisecting a batch into
// individual transactions. It is non-recoverable.
type RetryInconsistency struct {
	Message string
}

func (e *RetryInconsistency) Error() string {
	return "retry inconsistency: " + e.Message
}
