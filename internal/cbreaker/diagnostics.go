package cbreaker

import (
	"time"

	"github.com/shieldrail/resilience/internal/window"
)

// Diagnostics bundles the current state, metrics snapshot, active config,
// and forward-looking predictions into a single troubleshooting view,
// adapted from the teacher's internal/breaker/diagnostics.go (WillTripNext,
// TimeUntilHalfOpen) and generalized to the six-state machine.
type Diagnostics struct {
	Name              string
	State             State
	Metrics           window.Snapshot
	Config            Config
	NotPermittedCalls uint64

	// WillTripNext predicts whether the breaker would open if the next
	// Closed-state call were a failure. Always false outside Closed.
	WillTripNext bool

	// TimeUntilHalfOpen is the remaining wait before an Open breaker
	// becomes eligible for HalfOpen. Zero outside Open.
	TimeUntilHalfOpen time.Duration
}

// Diagnostics returns a Diagnostics snapshot for this breaker.
func (cb *CircuitBreaker) Diagnostics() Diagnostics {
	state := cb.State()
	cfg := cb.Config()
	snap := cb.Metrics()

	var willTrip bool
	if state == StateClosed {
		willTrip = cb.wouldTripOnNextFailure(cfg, snap)
	}

	var untilHalfOpen time.Duration
	if state == StateOpen {
		opened := cb.openedAt.Load()
		elapsed := time.Duration(cfg.Clock.Now().UnixNano() - opened)
		if remaining := cfg.WaitDurationInOpenState - elapsed; remaining > 0 {
			untilHalfOpen = remaining
		}
	}

	return Diagnostics{
		Name:              cb.name,
		State:             state,
		Metrics:           snap,
		Config:            cfg,
		NotPermittedCalls: cb.NotPermittedCalls(),
		WillTripNext:      willTrip,
		TimeUntilHalfOpen: untilHalfOpen,
	}
}

// wouldTripOnNextFailure simulates one more failed call against the current
// snapshot and checks whether it would cross either threshold.
func (cb *CircuitBreaker) wouldTripOnNextFailure(cfg Config, snap window.Snapshot) bool {
	total := snap.TotalCalls + 1
	failed := snap.FailedCalls + 1
	if total < cfg.MinimumNumberOfCalls {
		return false
	}
	failureRate := 100 * float64(failed) / float64(total)
	return failureRate >= cfg.FailureRateThreshold
}
