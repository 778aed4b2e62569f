package limiter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shieldrail/resilience/event"
)

// cycleState is the immutable snapshot CAS'd as a whole: the active cycle
// and its available permits. The wait is computed per call, not stored.
type cycleState struct {
	cycle     int64
	available int64 // may go negative: reservations beyond the current cycle's N
}

// Cycle is the atomic cycle-based permit scheduler (spec.md §4.3): time
// since construction is divided into fixed-length cycles of
// LimitRefreshPeriod, each replenishing LimitForPeriod permits.
type Cycle struct {
	name      string
	cfg       Config
	start     time.Time
	state     atomic.Pointer[cycleState]
	publisher *event.Publisher
}

// NewCycle constructs a Cycle limiter named name.
func NewCycle(name string, cfg Config) *Cycle {
	cfg = cfg.withDefaults()
	cfg.validate()

	l := &Cycle{
		name:      name,
		cfg:       cfg,
		start:     cfg.Clock.Now(),
		publisher: event.New(name, cfg.Logger),
	}
	l.state.Store(&cycleState{cycle: 0, available: int64(cfg.LimitForPeriod)})
	return l
}

// Name returns the name this Cycle was constructed with.
func (l *Cycle) Name() string { return l.name }

// EventPublisher returns the publisher for this limiter's lifecycle events.
func (l *Cycle) EventPublisher() *event.Publisher { return l.publisher }

// AcquirePermission implements the CAS-loop algorithm of spec.md §4.3: it
// grants permits immediately when the current cycle has headroom, computes
// a wait into a future cycle when it doesn't, and rejects outright when that
// wait would exceed TimeoutDuration.
func (l *Cycle) AcquirePermission(ctx context.Context, permits int) bool {
	for {
		old := l.state.Load()
		elapsed := l.cfg.Clock.Now().Sub(l.start)
		curCycle := int64(elapsed / l.cfg.LimitRefreshPeriod)

		var baseCycle, baseAvailable int64
		if curCycle > old.cycle {
			baseCycle = curCycle
			baseAvailable = int64(l.cfg.LimitForPeriod)
		} else {
			baseCycle = old.cycle
			baseAvailable = old.available
		}

		newAvailable := baseAvailable - int64(permits)

		var wait time.Duration
		if newAvailable < 0 {
			deficit := -newAvailable
			cyclesNeeded := (deficit + int64(l.cfg.LimitForPeriod) - 1) / int64(l.cfg.LimitForPeriod)
			targetCycleEnd := time.Duration(baseCycle+cyclesNeeded) * l.cfg.LimitRefreshPeriod
			wait = targetCycleEnd - elapsed
			if wait < 0 {
				wait = 0
			}
		}

		if wait > l.cfg.TimeoutDuration {
			rejected := &cycleState{cycle: baseCycle, available: newAvailable}
			if !l.state.CompareAndSwap(old, rejected) {
				continue
			}
			l.publisher.Publish(EventFailure, OutcomePayload{Permits: permits})
			return false
		}

		next := &cycleState{cycle: baseCycle, available: newAvailable}
		if !l.state.CompareAndSwap(old, next) {
			continue
		}

		if wait > 0 {
			select {
			case <-l.cfg.Clock.After(wait):
			case <-ctx.Done():
				// Reservation already committed; the contract's "interrupt
				// bit preserved" semantics means the permits are spent even
				// though the caller observes false (spec.md §4.3 step 4).
				l.publisher.Publish(EventFailure, OutcomePayload{Permits: permits})
				return false
			}
		}

		l.publisher.Publish(EventSuccess, OutcomePayload{Permits: permits})
		return true
	}
}

// TryAcquirePermission is AcquirePermission with a background context —
// equivalent to "no deadline beyond TimeoutDuration itself".
func (l *Cycle) TryAcquirePermission(permits int) bool {
	return l.AcquirePermission(context.Background(), permits)
}

// Execute runs op if a single permit is admitted within TimeoutDuration,
// returning ErrRequestNotPermitted without invoking op otherwise (spec.md
// §6 decorator surface).
func (l *Cycle) Execute(op func() (any, error)) (any, error) {
	return l.ExecuteContext(context.Background(), op)
}

// ExecuteContext is Execute honoring ctx's deadline/cancellation in
// addition to TimeoutDuration.
func (l *Cycle) ExecuteContext(ctx context.Context, op func() (any, error)) (any, error) {
	if !l.AcquirePermission(ctx, 1) {
		return nil, ErrRequestNotPermitted
	}
	return op()
}
