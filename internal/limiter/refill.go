package limiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/shieldrail/resilience/event"
)

// RefillConfig configures the Refill variant: a continuously replenishing
// token bucket rather than Cycle's discrete-cycle reservations (spec.md
// §4.3 "Refill variant").
type RefillConfig struct {
	// Capacity is the maximum number of buffered permits (the bucket size).
	Capacity int

	// RefillPeriod is the time to replenish one permit, i.e. the inverse of
	// the bucket's fill rate.
	RefillPeriod time.Duration

	// InitialPermits seeds the bucket; defaults to Capacity (full).
	InitialPermits int
}

// Refill is a continuous-refill permit scheduler backed by
// golang.org/x/time/rate.Limiter: reservations decrement the bucket, which
// replenishes linearly with time instead of resetting at discrete cycle
// boundaries.
type Refill struct {
	name      string
	limiter   *rate.Limiter
	publisher *event.Publisher
}

// NewRefill constructs a Refill limiter named name.
func NewRefill(name string, cfg RefillConfig) *Refill {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 50
	}
	if cfg.RefillPeriod <= 0 {
		cfg.RefillPeriod = 20 * time.Millisecond // 50/s default, mirroring Cycle's 50-per-second default
	}
	initial := cfg.InitialPermits
	if initial <= 0 {
		initial = cfg.Capacity
	}

	perSecond := rate.Every(cfg.RefillPeriod)
	l := rate.NewLimiter(perSecond, cfg.Capacity)
	// Burn down to InitialPermits if it differs from a full bucket: x/time/rate
	// always starts full, so we reserve away the difference up front.
	if deficit := cfg.Capacity - initial; deficit > 0 {
		l.ReserveN(time.Now(), deficit)
	}

	return &Refill{
		name:      name,
		limiter:   l,
		publisher: event.New(name, nil),
	}
}

// Name returns the name this Refill was constructed with.
func (l *Refill) Name() string { return l.name }

// EventPublisher returns the publisher for this limiter's lifecycle events.
func (l *Refill) EventPublisher() *event.Publisher { return l.publisher }

// AcquirePermission waits, up to ctx's deadline, for permits tokens to
// become available, returning false without consuming tokens if the wait
// would exceed the context deadline or ctx is canceled first.
func (l *Refill) AcquirePermission(ctx context.Context, permits int) bool {
	if err := l.limiter.WaitN(ctx, permits); err != nil {
		l.publisher.Publish(EventFailure, OutcomePayload{Permits: permits})
		return false
	}
	l.publisher.Publish(EventSuccess, OutcomePayload{Permits: permits})
	return true
}

// TryAcquirePermission is the non-blocking variant: it succeeds only if
// permits are available for immediate use.
func (l *Refill) TryAcquirePermission(permits int) bool {
	ok := l.limiter.AllowN(time.Now(), permits)
	if ok {
		l.publisher.Publish(EventSuccess, OutcomePayload{Permits: permits})
	} else {
		l.publisher.Publish(EventFailure, OutcomePayload{Permits: permits})
	}
	return ok
}

// Execute runs op if a token is immediately available, returning
// ErrRequestNotPermitted without invoking op otherwise (spec.md §6
// decorator surface).
func (l *Refill) Execute(op func() (any, error)) (any, error) {
	if !l.TryAcquirePermission(1) {
		return nil, ErrRequestNotPermitted
	}
	return op()
}

// ExecuteContext waits, up to ctx's deadline, for a token to become
// available before running op.
func (l *Refill) ExecuteContext(ctx context.Context, op func() (any, error)) (any, error) {
	if !l.AcquirePermission(ctx, 1) {
		return nil, ErrRequestNotPermitted
	}
	return op()
}
