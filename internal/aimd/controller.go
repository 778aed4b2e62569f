package aimd

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shieldrail/resilience/event"
	"github.com/shieldrail/resilience/internal/bulkheadcore"
	"github.com/shieldrail/resilience/internal/window"
)

// EventKind enumerates the adaptive bulkhead's lifecycle event stream.
type EventKind = event.Kind

const (
	EventLimitIncreased EventKind = "OnLimitIncreased"
	EventLimitDecreased EventKind = "OnLimitDecreased"
	EventPhaseChanged   EventKind = "OnPhaseChanged"
)

// LimitChangePayload is the payload of EventLimitIncreased/Decreased.
type LimitChangePayload struct {
	From int
	To   int
}

// Controller wraps a bulkheadcore.Semaphore whose MaxConcurrentCalls is
// driven by an AIMD congestion-control loop (spec.md §4.6) instead of a
// fixed configuration.
type Controller struct {
	name  string
	cfg   Config
	sem   *bulkheadcore.Semaphore
	limit atomic.Int64 // current concurrency limit, mirrors sem's cap
	phase atomic.Int32

	winMu sync.Mutex
	win   window.Window

	publisher *event.Publisher
}

// New constructs a Controller named name, starting in SlowStart at
// InitialLimit.
func New(name string, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	cfg.validate()

	c := &Controller{
		name:      name,
		cfg:       cfg,
		sem:       bulkheadcore.NewSemaphore(name, bulkheadcore.SemaphoreConfig{MaxConcurrentCalls: cfg.InitialLimit, Logger: cfg.Logger}),
		win:       window.NewCountBased(cfg.SlidingWindowSize, cfg.MinimumNumberOfCalls),
		publisher: event.New(name, cfg.Logger),
	}
	c.limit.Store(int64(cfg.InitialLimit))
	c.phase.Store(int32(SlowStart))
	return c
}

// Name returns the name this Controller was constructed with.
func (c *Controller) Name() string { return c.name }

// EventPublisher returns the publisher for this controller's lifecycle
// events.
func (c *Controller) EventPublisher() *event.Publisher { return c.publisher }

// Limit returns the controller's current concurrency limit.
func (c *Controller) Limit() int { return int(c.limit.Load()) }

// Phase returns the controller's current AIMD phase.
func (c *Controller) Phase() Phase { return Phase(c.phase.Load()) }

// TryAcquirePermission is the non-blocking admission check, delegated to
// the wrapped semaphore bulkhead.
func (c *Controller) TryAcquirePermission() bool { return c.sem.TryAcquirePermission() }

// AcquirePermission is the admission check taking a ctx, delegated to the
// wrapped semaphore bulkhead; that bulkhead has no MaxWaitDuration, so it
// does not wait for a free permit.
func (c *Controller) AcquirePermission(ctx context.Context) bool { return c.sem.AcquirePermission(ctx) }

// OnComplete releases the held permit and records the call's outcome
// against the controller's metrics window, adjusting the limit per the
// AIMD table if the window produced a fresh classification (spec.md §4.6).
func (c *Controller) OnComplete(duration time.Duration, err error) {
	c.sem.OnComplete()

	outcome := window.Success
	if err != nil {
		outcome = window.Failure
	}
	slow := duration >= c.cfg.SlowCallDurationThreshold

	c.winMu.Lock()
	c.win.Record(outcome, duration, slow)
	snap := c.win.Snapshot()
	c.winMu.Unlock()

	c.evaluate(snap)
}

// evaluate applies spec.md §4.6's four-transition AIMD table to the
// current phase and classification result.
func (c *Controller) evaluate(snap window.Snapshot) {
	if snap.TotalCalls < c.cfg.MinimumNumberOfCalls {
		return
	}
	result := classify(c.cfg, snap)
	phase := c.Phase()
	current := c.Limit()

	switch {
	case phase == SlowStart && result == BelowThresholds:
		next := minInt(c.cfg.MaxLimit, int(math.Ceil(float64(current)*c.cfg.IncreaseMultiplier)))
		c.applyLimit(current, next)

	case phase == SlowStart && result == AboveThresholds:
		next := maxInt(c.cfg.MinLimit, int(float64(current)*c.cfg.DecreaseMultiplier))
		c.applyLimit(current, next)
		c.setPhase(CongestionAvoidance)
		c.resetWindow()

	case phase == CongestionAvoidance && result == BelowThresholds:
		next := minInt(c.cfg.MaxLimit, current+c.cfg.IncreaseSummand)
		c.applyLimit(current, next)
		if next <= c.cfg.MinLimit {
			c.setPhase(SlowStart)
			c.resetWindow()
		}

	case phase == CongestionAvoidance && result == AboveThresholds:
		next := maxInt(c.cfg.MinLimit, int(float64(current)*c.cfg.DecreaseMultiplier))
		c.applyLimit(current, next)
	}
}

func (c *Controller) applyLimit(from, to int) {
	if to == from {
		return
	}
	c.limit.Store(int64(to))
	c.sem.ChangeConfig(to)
	if to > from {
		c.publisher.Publish(EventLimitIncreased, LimitChangePayload{From: from, To: to})
	} else {
		c.publisher.Publish(EventLimitDecreased, LimitChangePayload{From: from, To: to})
	}
}

func (c *Controller) setPhase(p Phase) {
	c.phase.Store(int32(p))
	c.publisher.Publish(EventPhaseChanged, p)
}

// resetWindow clears the metrics window on a phase transition (Design
// Decision: see SPEC_FULL.md §9 — resetting on both directions avoids a
// stale sample from the old phase immediately re-triggering a transition).
func (c *Controller) resetWindow() {
	c.winMu.Lock()
	c.win.Reset()
	c.winMu.Unlock()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
