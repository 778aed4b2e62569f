package bulkheadcore

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/shieldrail/resilience/event"
)

// Semaphore is the bounded counting-semaphore bulkhead variant (spec.md
// §4.4 "Semaphore variant"), built on golang.org/x/sync/semaphore.Weighted
// rather than a hand-rolled counter: Weighted already gives FIFO-fair
// blocking acquisition and context-aware cancellation, which is exactly
// this variant's contract.
type Semaphore struct {
	name string
	cfg  SemaphoreConfig
	sem  *semaphore.Weighted
	cur  atomic.Int64
	pub  *event.Publisher
}

// NewSemaphore constructs a Semaphore bulkhead named name.
func NewSemaphore(name string, cfg SemaphoreConfig) *Semaphore {
	cfg = cfg.withDefaults()
	cfg.validate()
	return &Semaphore{
		name: name,
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		pub:  event.New(name, cfg.Logger),
	}
}

// Name returns the name this Semaphore was constructed with.
func (b *Semaphore) Name() string { return b.name }

// EventPublisher returns the publisher for this bulkhead's lifecycle events.
func (b *Semaphore) EventPublisher() *event.Publisher { return b.pub }

// TryAcquirePermission is the non-blocking admission check.
func (b *Semaphore) TryAcquirePermission() bool {
	if !b.sem.TryAcquire(1) {
		b.pub.Publish(EventCallRejected, nil)
		return false
	}
	b.cur.Add(1)
	b.pub.Publish(EventCallPermitted, nil)
	return true
}

// AcquirePermission blocks up to MaxWaitDuration (or until ctx is done, if
// sooner) for a free permit.
func (b *Semaphore) AcquirePermission(ctx context.Context) bool {
	if b.cfg.MaxWaitDuration == 0 {
		return b.TryAcquirePermission()
	}
	if b.cfg.MaxWaitDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.MaxWaitDuration)
		defer cancel()
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.pub.Publish(EventCallRejected, nil)
		return false
	}
	b.cur.Add(1)
	b.pub.Publish(EventCallPermitted, nil)
	return true
}

// OnComplete releases exactly one permit. Callers must invoke this exactly
// once per successful TryAcquirePermission/AcquirePermission (spec.md §4.4:
// "onComplete always releases exactly one permit").
func (b *Semaphore) OnComplete() {
	b.cur.Add(-1)
	b.sem.Release(1)
	b.pub.Publish(EventCallFinished, nil)
}

// AvailableCalls returns the number of permits currently unconsumed.
func (b *Semaphore) AvailableCalls() int {
	return b.cfg.MaxConcurrentCalls - int(b.cur.Load())
}

// MaxConcurrentCalls returns the currently configured concurrency cap.
func (b *Semaphore) MaxConcurrentCalls() int {
	return b.cfg.MaxConcurrentCalls
}

// Execute runs op if a permit is immediately available, returning
// ErrBulkheadFull without invoking op otherwise (spec.md §6 decorator
// surface).
func (b *Semaphore) Execute(op func() (any, error)) (any, error) {
	if !b.TryAcquirePermission() {
		return nil, ErrBulkheadFull
	}
	defer b.OnComplete()
	return op()
}

// ExecuteContext blocks up to MaxWaitDuration (or until ctx is done, if
// sooner) for a permit before running op.
func (b *Semaphore) ExecuteContext(ctx context.Context, op func() (any, error)) (any, error) {
	if !b.AcquirePermission(ctx) {
		return nil, ErrBulkheadFull
	}
	defer b.OnComplete()
	return op()
}

// ChangeConfig atomically swaps in a new MaxConcurrentCalls. In-flight calls
// holding a permit under the old cap are unaffected; only future acquires
// see the new limit (spec.md §4.4 "Config change is atomic"). Shrinking the
// pool does not revoke outstanding permits — it merely narrows what future
// acquires can see until enough releases bring usage back under the new cap.
func (b *Semaphore) ChangeConfig(maxConcurrentCalls int) {
	if maxConcurrentCalls < 1 {
		panic("bulkheadcore: MaxConcurrentCalls must be >= 1")
	}
	delta := int64(maxConcurrentCalls) - int64(b.cfg.MaxConcurrentCalls)
	b.cfg.MaxConcurrentCalls = maxConcurrentCalls
	switch {
	case delta > 0:
		b.sem.Release(delta)
	case delta < 0:
		// Best-effort shrink: try to reclaim the difference without
		// blocking; if permits aren't free yet, they are reclaimed as
		// in-flight calls complete and OnComplete releases them back to a
		// semaphore now sized smaller than its outstanding count.
		if !b.sem.TryAcquire(-delta) {
			go func(n int64) { _ = b.sem.Acquire(context.Background(), n) }(-delta)
		}
	}
}
