package eventsourcing

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/liquidprojections/projector/framework/metrics"
)

// Resolution is returned by an ExceptionPolicy to tell the RetryController
// how to respond to a failed batch attempt.
type Resolution int

const (
	// Abort re-raises the tagged ProjectionFailure to the caller of Handle.
	Abort Resolution = iota
	// Retry re-runs the whole batch, treating it as the last of its page
	// so checkpoint state is written once the retry succeeds.
	Retry
	// RetryIndividual bisects the batch into single-transaction batches,
	// attempted in order. Returning this while already bisecting is a
	// RetryInconsistency.
	RetryIndividual
	// Ignore swallows the failure and returns successfully without
	// advancing the checkpoint for this attempt.
	Ignore
)

// ExceptionPolicy classifies a ProjectionFailure and decides how the
// RetryController should respond. attempts counts from 1 and is shared
// across a RetryIndividual bisection.
type ExceptionPolicy func(ctx context.Context, failure *ProjectionFailure, attempts int) Resolution

// AbortPolicy is the default policy: always Abort on the first failure.
func AbortPolicy(context.Context, *ProjectionFailure, int) Resolution {
	return Abort
}

// projectBatchFunc runs one attempt at projecting batch, treating it as
// the last of its page when isLastOfPage is true.
type projectBatchFunc func(ctx context.Context, batch []Transaction, isLastOfPage bool) error

// RetryController (C6) wraps a batch invocation in a retry loop driven by
// an ExceptionPolicy.
type RetryController struct {
	policy  ExceptionPolicy
	metrics *metrics.Metrics
}

// NewRetryController builds a RetryController. A nil policy defaults to
// AbortPolicy.
func NewRetryController(policy ExceptionPolicy) *RetryController {
	if policy == nil {
		policy = AbortPolicy
	}
	return &RetryController{policy: policy}
}

// SetMetrics attaches an instrument set recording each resolution this
// controller's policy returns.
func (c *RetryController) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func resolutionName(r Resolution) string {
	switch r {
	case Retry:
		return "retry"
	case RetryIndividual:
		return "retry_individual"
	case Ignore:
		return "ignore"
	default:
		return "abort"
	}
}

// Handle runs projectBatch against batch, consulting the policy on
// failure and retrying, bisecting, ignoring, or aborting as instructed.
func (c *RetryController) Handle(ctx context.Context, batch []Transaction, isLastOfPage bool, projectBatch projectBatchFunc) error {
	return c.run(ctx, batch, isLastOfPage, projectBatch, 0, false, false)
}

func (c *RetryController) run(
	ctx context.Context,
	batch []Transaction,
	isLastOfPage bool,
	projectBatch projectBatchFunc,
	attempts int,
	retrying bool,
	inIndividualMode bool,
) error {
	for {
		attempts++

		err := projectBatch(ctx, batch, isLastOfPage || retrying)
		if err == nil {
			return nil
		}
		if IsCancellation(err) {
			return err
		}

		failure := AsProjectionFailure(err, "projector failed to project transaction batch.")
		resolution := c.policy(ctx, failure, attempts)
		c.metrics.RecordRetryResolution(ctx, resolutionName(resolution))
		switch resolution {
		case Abort:
			return failure
		case Retry:
			retrying = true
			continue
		case RetryIndividual:
			if inIndividualMode {
				return &RetryInconsistency{Message: "policy returned RetryIndividual while already retrying individually"}
			}
			for _, t := range batch {
				if err := c.run(ctx, []Transaction{t}, true, projectBatch, attempts, retrying, true); err != nil {
					return err
				}
			}
			return nil
		case Ignore:
			return nil
		default:
			return failure
		}
	}
}

// BackoffExceptionPolicy is a ready-made ExceptionPolicy for users who
// want bounded automatic retries without writing their own policy: it
// retries every failure with exponential backoff up to maxAttempts, then
// aborts.
type BackoffExceptionPolicy struct {
	maxAttempts int
	backoff     retry.Backoff
}

// NewBackoffExceptionPolicy builds a BackoffExceptionPolicy with the given
// base delay and attempt ceiling.
func NewBackoffExceptionPolicy(maxAttempts int, base time.Duration) (*BackoffExceptionPolicy, error) {
	b, err := retry.NewExponential(base)
	if err != nil {
		return nil, err
	}
	return &BackoffExceptionPolicy{
		maxAttempts: maxAttempts,
		backoff:     retry.WithMaxRetries(uint64(maxAttempts), b),
	}, nil
}

// Policy implements ExceptionPolicy.
func (p *BackoffExceptionPolicy) Policy(ctx context.Context, failure *ProjectionFailure, attempts int) Resolution {
	if attempts >= p.maxAttempts {
		return Abort
	}

	delay, stop := p.backoff.Next()
	if stop {
		return Abort
	}

	select {
	case <-ctx.Done():
		return Abort
	case <-time.After(delay):
	}
	return Retry
}
