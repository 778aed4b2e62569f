// Package aimd implements the Adaptive Bulkhead's congestion-control loop
// (spec.md §4.6): an AIMD controller that grows or shrinks a wrapped
// bulkhead's concurrency limit based on a sliding-window failure/slow-call
// rate, the same percentage-over-minimum-sample decision the circuit
// breaker engine uses (internal/cbreaker.evaluateThresholds), generalized
// from a trip/no-trip binary into a continuous-limit controller.
package aimd

import (
	"time"

	"go.uber.org/zap"

	"github.com/shieldrail/resilience/internal/window"
)

// Phase is one of the AIMD controller's two operating modes (spec.md §4.6).
type Phase int32

const (
	SlowStart Phase = iota
	CongestionAvoidance
)

func (p Phase) String() string {
	if p == CongestionAvoidance {
		return "congestion_avoidance"
	}
	return "slow_start"
}

// Result classifies a recorded outcome's window snapshot against the
// configured thresholds (spec.md §4.6).
type Result int

const (
	BelowThresholds Result = iota
	AboveThresholds
)

// Config configures an AIMD controller.
type Config struct {
	// MinLimit is the floor the controller will never shrink below.
	MinLimit int

	// MaxLimit is the ceiling the controller will never grow beyond.
	MaxLimit int

	// InitialLimit seeds the controller's starting concurrency limit.
	InitialLimit int

	// FailureRateThreshold and SlowCallRateThreshold classify a window
	// snapshot as AboveThresholds (spec.md §4.6).
	FailureRateThreshold  float64
	SlowCallRateThreshold float64

	// MinimumNumberOfCalls is the sample-size floor before the controller
	// evaluates thresholds at all.
	MinimumNumberOfCalls int

	// SlidingWindowSize is the count-based window size backing the
	// controller's metrics (spec.md §4.2 reused as-is).
	SlidingWindowSize int

	// IncreaseMultiplier scales the limit up in SlowStart.
	IncreaseMultiplier float64

	// DecreaseMultiplier scales the limit down on AboveThresholds in either
	// phase.
	DecreaseMultiplier float64

	// IncreaseSummand grows the limit additively in CongestionAvoidance.
	IncreaseSummand int

	SlowCallDurationThreshold time.Duration
	Logger                    *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MinLimit <= 0 {
		c.MinLimit = 1
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 200
	}
	if c.InitialLimit <= 0 {
		c.InitialLimit = c.MinLimit
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = 50
	}
	if c.SlowCallRateThreshold <= 0 {
		c.SlowCallRateThreshold = 100
	}
	if c.MinimumNumberOfCalls <= 0 {
		c.MinimumNumberOfCalls = 10
	}
	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = 30
	}
	if c.IncreaseMultiplier <= 1 {
		c.IncreaseMultiplier = 1.5
	}
	if c.DecreaseMultiplier <= 0 || c.DecreaseMultiplier >= 1 {
		c.DecreaseMultiplier = 0.5
	}
	if c.IncreaseSummand <= 0 {
		c.IncreaseSummand = 1
	}
	if c.SlowCallDurationThreshold <= 0 {
		c.SlowCallDurationThreshold = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) validate() {
	if c.MinLimit < 1 {
		panic("aimd: MinLimit must be >= 1")
	}
	if c.MaxLimit < c.MinLimit {
		panic("aimd: MaxLimit must be >= MinLimit")
	}
}

func classify(cfg Config, snap window.Snapshot) Result {
	if snap.TotalCalls < cfg.MinimumNumberOfCalls {
		return BelowThresholds
	}
	if snap.FailureRate >= cfg.FailureRateThreshold || snap.SlowCallRate >= cfg.SlowCallRateThreshold {
		return AboveThresholds
	}
	return BelowThresholds
}
