package retrycore

import (
	"context"
	"errors"
	"time"

	"github.com/shieldrail/resilience/event"
)

// ErrMaxRetriesExceeded is the sentinel wrapped by MaxRetriesExceededError;
// match it with errors.Is.
var ErrMaxRetriesExceeded = errors.New("retrycore: max retries exceeded")

// MaxRetriesExceededError is returned by Execute when MaxAttempts is
// exhausted via a retryable result rather than an exception — there's no
// underlying error to surface, so the last result is carried instead
// (spec.md §7: "Raised when Retry exhausts attempts with a retryable
// result | carries last outcome").
type MaxRetriesExceededError struct {
	Result any
}

func (e *MaxRetriesExceededError) Error() string { return "retrycore: max retries exceeded" }

func (e *MaxRetriesExceededError) Unwrap() error { return ErrMaxRetriesExceeded }

// Retry decorates operations with an attempt loop: invoke, classify the
// outcome, sleep per IntervalFunction, repeat until success, an
// unretryable outcome, or MaxAttempts is exhausted (spec.md §4.5).
type Retry struct {
	name      string
	cfg       Config
	metrics   metricsCounters
	publisher *event.Publisher
}

// New constructs a Retry named name.
func New(name string, cfg Config) *Retry {
	cfg = cfg.withDefaults()
	cfg.validate()
	return &Retry{
		name:      name,
		cfg:       cfg,
		publisher: event.New(name, cfg.Logger),
	}
}

// Name returns the name this Retry was constructed with.
func (r *Retry) Name() string { return r.name }

// EventPublisher returns the publisher for this retry's lifecycle events.
func (r *Retry) EventPublisher() *event.Publisher { return r.publisher }

// Metrics returns the cumulative counters across every Execute call.
func (r *Retry) Metrics() Metrics { return r.metrics.snapshot() }

// Execute runs op under the retry policy (spec.md §4.5's decorate
// algorithm): a retryable failure consumes one attempt and sleeps for
// IntervalFunction(attempt) before the next try; an unretryable failure or
// exhausted attempt budget surfaces the last outcome immediately.
func (r *Retry) Execute(ctx context.Context, op func() (any, error)) (any, error) {
	r.metrics.total.Add(1)

	var lastResult any
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		result, err := op()

		if err == nil {
			if r.cfg.RetryOnResult != nil && r.cfg.RetryOnResult(result) {
				lastResult, lastErr = result, nil
				r.publisher.Publish(EventAttemptFailed, attemptPayload{Attempt: attempt, Result: result})
			} else {
				if attempt == 1 {
					r.metrics.successWithoutRetry.Add(1)
				} else {
					r.metrics.successWithRetry.Add(1)
				}
				r.publisher.Publish(EventSuccess, attemptPayload{Attempt: attempt, Result: result})
				return result, nil
			}
		} else {
			if !r.cfg.RetryOnException(err) {
				if attempt == 1 {
					r.metrics.failedWithoutRetry.Add(1)
				} else {
					r.metrics.failedWithRetry.Add(1)
				}
				r.publisher.Publish(EventError, attemptPayload{Attempt: attempt, Err: err})
				return result, err
			}
			lastResult, lastErr = result, err
			r.publisher.Publish(EventAttemptFailed, attemptPayload{Attempt: attempt, Err: err})
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.cfg.IntervalFunction(attempt)
		r.publisher.Publish(EventRetry, attemptPayload{Attempt: attempt, Delay: delay})

		if delay > 0 {
			select {
			case <-r.cfg.Clock.After(delay):
			case <-ctx.Done():
				r.metrics.failedWithRetry.Add(1)
				return nil, ctx.Err()
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.metrics.failedWithRetry.Add(1)
			return nil, ctxErr
		}
	}

	if lastErr != nil {
		r.metrics.failedWithRetry.Add(1)
		r.publisher.Publish(EventError, attemptPayload{Attempt: r.cfg.MaxAttempts, Err: lastErr})
		return lastResult, lastErr
	}

	// Exhausted via a retryable result, never an exception: there's no
	// error to surface on its own, so MaxRetriesExceededError carries the
	// last result instead of returning (lastResult, nil) as if it succeeded.
	exhausted := &MaxRetriesExceededError{Result: lastResult}
	r.metrics.failedWithRetry.Add(1)
	r.publisher.Publish(EventError, attemptPayload{Attempt: r.cfg.MaxAttempts, Result: lastResult, Err: exhausted})
	return lastResult, exhausted
}

// attemptPayload is the payload carried by every per-attempt event.
type attemptPayload struct {
	Attempt int
	Result  any
	Err     error
	Delay   time.Duration
}
