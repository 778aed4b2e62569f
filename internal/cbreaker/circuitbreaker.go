package cbreaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shieldrail/resilience/event"
	"github.com/shieldrail/resilience/internal/window"
)

// CircuitBreaker is a call-gating state machine consuming a sliding-window
// metrics buffer to decide whether to admit calls. See package doc for the
// state graph. All operations are non-blocking (spec.md §5: "Circuit
// Breaker NEVER blocks").
type CircuitBreaker struct {
	name string

	configMu sync.RWMutex
	config   Config

	state    atomic.Int32 // State
	openedAt atomic.Int64 // UnixNano, valid while Open

	// metrics is swapped for a fresh window on every state transition except
	// the transition into Open, which keeps the window that tripped the
	// breaker so its rates stay readable while Open. Disabled/ForcedOpen
	// store a nil window and never record.
	metrics atomic.Pointer[window.Window]

	// halfOpenPermits bounds concurrent trial calls in HalfOpen to
	// PermittedNumberOfCallsInHalfOpenState (spec.md §4.1 permissioning).
	halfOpenPermits atomic.Int32

	notPermittedCalls atomic.Uint64

	publisher *event.Publisher

	// halfOpenTimer is armed when AutomaticTransitionFromOpenToHalfOpen is
	// set, so Open->HalfOpen fires without a triggering call.
	timerMu     sync.Mutex
	timerCancel chan struct{}
}

// New constructs a CircuitBreaker named name with the given Config,
// starting Closed. Panics if cfg is invalid (programmer error, caught in
// development — see Config.validate).
func New(name string, cfg Config) *CircuitBreaker {
	cfg = cfg.withDefaults()
	cfg.validate()

	cb := &CircuitBreaker{
		name:      name,
		config:    cfg,
		publisher: event.New(name, cfg.Logger),
	}
	cb.state.Store(int32(StateClosed))
	cb.metrics.Store(newWindowPtr(cfg))
	return cb
}

func newWindowPtr(cfg Config) *window.Window {
	return newWindowPtrSized(cfg, cfg.SlidingWindowSize, cfg.MinimumNumberOfCalls)
}

// newHalfOpenWindowPtr sizes the HalfOpen trial-window buffer to exactly
// PermittedNumberOfCallsInHalfOpenState so the failure/slow-call rate
// becomes available the instant the trial window completes, independent of
// the Closed-state MinimumNumberOfCalls (spec.md §4.1: "Trial outcomes
// populate a distinct metrics buffer").
func newHalfOpenWindowPtr(cfg Config) *window.Window {
	// Always count-based: the trial window counts the first N calls
	// regardless of whether the Closed-state window is time-based.
	var w window.Window = window.NewCountBased(cfg.PermittedNumberOfCallsInHalfOpenState, cfg.PermittedNumberOfCallsInHalfOpenState)
	return &w
}

func newWindowPtrSized(cfg Config, size, minimumCalls int) *window.Window {
	var w window.Window
	if cfg.SlidingWindowType == TimeBasedWindow {
		w = window.NewTimeBased(size, minimumCalls, cfg.Clock.Now)
	} else {
		w = window.NewCountBased(size, minimumCalls)
	}
	return &w
}

// Name returns the circuit breaker's identifier.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state.
func (cb *CircuitBreaker) State() State { return State(cb.state.Load()) }

// Config returns a copy of the currently active configuration.
func (cb *CircuitBreaker) Config() Config {
	cb.configMu.RLock()
	defer cb.configMu.RUnlock()
	return cb.config
}

// UpdateConfig atomically replaces the active configuration. The current
// window/state are left untouched; new thresholds apply to subsequent
// calls. Panics if cfg is invalid.
func (cb *CircuitBreaker) UpdateConfig(cfg Config) {
	cfg = cfg.withDefaults()
	cfg.validate()
	cb.configMu.Lock()
	cb.config = cfg
	cb.configMu.Unlock()
}

// EventPublisher returns the publisher for this breaker's lifecycle events.
func (cb *CircuitBreaker) EventPublisher() *event.Publisher { return cb.publisher }

// Metrics returns the current window's snapshot. Disabled and ForcedOpen
// hold no metrics buffer and return a zero-value, not-enough-data snapshot.
func (cb *CircuitBreaker) Metrics() window.Snapshot {
	w := cb.metrics.Load()
	if w == nil {
		return window.Snapshot{FailureRate: window.NotEnoughData, SlowCallRate: window.NotEnoughData}
	}
	return (*w).Snapshot()
}

// NotPermittedCalls returns the cumulative count of calls denied by gating
// (CB-2: incremented by exactly 1 per denied call).
func (cb *CircuitBreaker) NotPermittedCalls() uint64 { return cb.notPermittedCalls.Load() }

// TryAcquirePermission is the non-blocking admission check (spec.md §4.1).
func (cb *CircuitBreaker) TryAcquirePermission() bool {
	switch cb.State() {
	case StateDisabled:
		return true
	case StateForcedOpen:
		cb.notPermittedCalls.Add(1)
		cb.publisher.Publish(EventCallNotPermitted, nil)
		return false
	case StateOpen:
		if cb.tryLazyHalfOpenTransition() {
			return cb.TryAcquirePermission() // re-enter under HalfOpen
		}
		cb.notPermittedCalls.Add(1)
		cb.publisher.Publish(EventCallNotPermitted, nil)
		return false
	case StateHalfOpen:
		for {
			cur := cb.halfOpenPermits.Load()
			if cur <= 0 {
				cb.notPermittedCalls.Add(1)
				cb.publisher.Publish(EventCallNotPermitted, nil)
				return false
			}
			if cb.halfOpenPermits.CompareAndSwap(cur, cur-1) {
				return true
			}
		}
	default: // Closed, MeteredOnly
		return true
	}
}

// AcquirePermission is TryAcquirePermission but returns ErrCallNotPermitted
// on denial instead of false.
func (cb *CircuitBreaker) AcquirePermission() error {
	if !cb.TryAcquirePermission() {
		return ErrCallNotPermitted
	}
	return nil
}

// ReleasePermission returns an unconsumed HalfOpen trial permit — used on
// the Ignored-outcome path, where a call neither succeeds nor fails and so
// should not spend one of the limited trial slots (spec.md §4.1).
func (cb *CircuitBreaker) ReleasePermission() {
	if cb.State() == StateHalfOpen {
		cb.halfOpenPermits.Add(1)
	}
}

// tryLazyHalfOpenTransition detects that waitDurationInOpenState has
// elapsed and performs the Open->HalfOpen transition, returning true if it
// (or a racing caller) succeeded.
func (cb *CircuitBreaker) tryLazyHalfOpenTransition() bool {
	if cb.State() != StateOpen {
		return cb.State() == StateHalfOpen
	}
	opened := cb.openedAt.Load()
	cfg := cb.Config()
	elapsed := time.Duration(cfg.Clock.Now().UnixNano() - opened)
	if elapsed < cfg.WaitDurationInOpenState {
		return false
	}
	cb.transitionToHalfOpen()
	return true
}

// OnSuccess records a successful call outcome and may trigger a state
// transition. duration is compared against SlowCallDurationThreshold to
// classify the call as slow (spec.md §4.1 "slow-call detection").
func (cb *CircuitBreaker) OnSuccess(duration time.Duration) {
	cb.finishCall(cb.metrics.Load(), window.Success, duration, nil)
}

// OnError records a failed/ignored call outcome, classified by the active
// RecordException/IgnoreException predicates (spec.md §4.1 "Failure
// classification"), and may trigger a state transition.
func (cb *CircuitBreaker) OnError(duration time.Duration, err error) {
	cfg := cb.Config()
	outcome, ignored := cb.classifyError(cfg, err)
	if ignored {
		cb.ReleasePermission()
		cb.publisher.Publish(EventIgnoredError, OutcomePayload{Duration: duration, Err: err})
		return
	}
	cb.finishCall(cb.metrics.Load(), outcome, duration, err)
}

// classifyError applies IgnoreException/RecordException to err, returning
// the window.Outcome to record, or ignored=true if neither records it.
func (cb *CircuitBreaker) classifyError(cfg Config, err error) (outcome window.Outcome, ignored bool) {
	if cfg.IgnoreException != nil && safeIgnorePredicate(cfg, cb.name, err) {
		return 0, true
	}
	if cfg.RecordException != nil && !safeRecordPredicate(cfg, cb.name, err) {
		// Neither ignored nor recorded as failure: treated as success per
		// the classifier closure's own contract (anything not matched by
		// RecordException and not Ignored counts toward Success).
		return window.Success, false
	}
	return window.Failure, false
}

// finishCall records outcome into w — the metrics window active when this
// call's permission was granted — unless a concurrent state transition has
// already swapped a new window in. In that case the windowed bookkeeping
// and threshold evaluation are skipped (the outcome belongs to an epoch
// that's already gone) but the lifecycle event still fires. This is what
// keeps a permit acquired in state S from being folded into a different
// epoch's fresh metrics (spec.md §3).
func (cb *CircuitBreaker) finishCall(w *window.Window, outcome window.Outcome, duration time.Duration, err error) {
	state := cb.State()
	if state == StateDisabled || state == StateForcedOpen {
		return
	}
	if w == nil {
		return
	}

	if outcome == window.Success {
		cb.publisher.Publish(EventSuccess, OutcomePayload{Duration: duration})
	} else {
		cb.publisher.Publish(EventError, OutcomePayload{Duration: duration, Err: err})
	}

	if cb.metrics.Load() != w {
		return
	}

	cfg := cb.Config()
	slow := duration >= cfg.SlowCallDurationThreshold
	(*w).Record(outcome, duration, slow)

	snap := (*w).Snapshot()
	cb.evaluateThresholds(state, cfg, snap)
}

// evaluateThresholds implements the Closed->Open and HalfOpen->{Closed,Open}
// edges of the transition table (spec.md §4.1).
func (cb *CircuitBreaker) evaluateThresholds(state State, cfg Config, snap window.Snapshot) {
	aboveThreshold := (snap.FailureRate >= 0 && snap.FailureRate >= cfg.FailureRateThreshold) ||
		(snap.SlowCallRate >= 0 && snap.SlowCallRate >= cfg.SlowCallRateThreshold)

	switch state {
	case StateClosed, StateMeteredOnly:
		if state == StateMeteredOnly {
			// MeteredOnly observes but never gates (spec.md §3): metrics
			// and events fire, but no transition.
			return
		}
		if !aboveThreshold {
			return
		}
		if snap.FailureRate >= cfg.FailureRateThreshold && snap.FailureRate >= 0 {
			cb.publisher.Publish(EventFailureRateExceeded, snap.FailureRate)
		}
		if snap.SlowCallRate >= cfg.SlowCallRateThreshold && snap.SlowCallRate >= 0 {
			cb.publisher.Publish(EventSlowCallRateExceeded, snap.SlowCallRate)
		}
		cb.transitionToOpen()

	case StateHalfOpen:
		if snap.TotalCalls < cfg.PermittedNumberOfCallsInHalfOpenState {
			return // trial window not yet complete
		}
		if aboveThreshold {
			cb.transitionToOpen()
		} else {
			cb.transitionToClosed()
		}
	}
}

// --- administrative transitions (spec.md §4.1) ---

func (cb *CircuitBreaker) transitionToOpen() {
	from := cb.State()
	if from != StateClosed && from != StateHalfOpen {
		return
	}
	if !cb.state.CompareAndSwap(int32(from), int32(StateOpen)) {
		return
	}
	cfg := cb.Config()
	cb.openedAt.Store(cfg.Clock.Now().UnixNano())
	cb.publisher.Publish(EventStateTransition, StateTransitionPayload{From: from, To: StateOpen})
	cb.armAutomaticHalfOpenTimer(cfg)
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	if !cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
		return
	}
	cb.cancelTimer()
	cfg := cb.Config()
	cb.metrics.Store(newHalfOpenWindowPtr(cfg))
	cb.halfOpenPermits.Store(int32(cfg.PermittedNumberOfCallsInHalfOpenState))
	cb.publisher.Publish(EventStateTransition, StateTransitionPayload{From: StateOpen, To: StateHalfOpen})
}

func (cb *CircuitBreaker) transitionToClosed() {
	if !cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
		return
	}
	cfg := cb.Config()
	cb.metrics.Store(newWindowPtr(cfg))
	cb.publisher.Publish(EventStateTransition, StateTransitionPayload{From: StateHalfOpen, To: StateClosed})
}

// TransitionToDisabled administratively disables gating and metrics.
func (cb *CircuitBreaker) TransitionToDisabled() error {
	return cb.adminTransition(StateDisabled, nil)
}

// TransitionToForcedOpen administratively forces the breaker open.
func (cb *CircuitBreaker) TransitionToForcedOpen() error {
	return cb.adminTransition(StateForcedOpen, nil)
}

// TransitionToMeteredOnly administratively switches to observe-only mode.
func (cb *CircuitBreaker) TransitionToMeteredOnly() error {
	return cb.adminTransition(StateMeteredOnly, func(cfg Config) { cb.metrics.Store(newWindowPtr(cfg)) })
}

// TransitionToClosedAdmin administratively forces a return to Closed from
// any other state (unlike the automatic HalfOpen->Closed edge, this is
// legal from Disabled/ForcedOpen/MeteredOnly per spec.md §4.1 "any ->
// Disabled/ForcedOpen: administrative"; symmetric administrative recovery
// is extended to Closed as well). Calling it while already Closed is the
// "Closed -> Closed: illegal" edge from that same table.
func (cb *CircuitBreaker) TransitionToClosedAdmin() error {
	return cb.adminTransition(StateClosed, func(cfg Config) { cb.metrics.Store(newWindowPtr(cfg)) })
}

// adminTransition applies an administrative state change, rejecting the
// no-op self-transition spec.md §4.1 calls out as illegal ("Closed ->
// Closed: illegal" generalized to every state — an admin call is a request
// to MOVE to a different state, not a license to rubber-stamp the current
// one).
func (cb *CircuitBreaker) adminTransition(to State, onEnter func(Config)) error {
	from := cb.State()
	if from == to {
		return ErrIllegalStateTransition
	}
	cb.cancelTimer()
	cb.state.Store(int32(to))
	if to == StateDisabled || to == StateForcedOpen {
		cb.metrics.Store(nil)
	} else if onEnter != nil {
		onEnter(cb.Config())
	}
	if to == StateForcedOpen {
		cb.openedAt.Store(cb.Config().Clock.Now().UnixNano())
	}
	cb.publisher.Publish(EventStateTransition, StateTransitionPayload{From: from, To: to})
	return nil
}

// Reset clears metrics and returns the breaker to Closed, as if newly
// constructed (spec.md §4.1).
func (cb *CircuitBreaker) Reset() {
	from := cb.State()
	cb.cancelTimer()
	cb.state.Store(int32(StateClosed))
	cb.metrics.Store(newWindowPtr(cb.Config()))
	cb.halfOpenPermits.Store(0)
	cb.notPermittedCalls.Store(0)
	cb.publisher.Publish(EventReset, nil)
	if from != StateClosed {
		cb.publisher.Publish(EventStateTransition, StateTransitionPayload{From: from, To: StateClosed})
	}
}

func (cb *CircuitBreaker) armAutomaticHalfOpenTimer(cfg Config) {
	if !cfg.AutomaticTransitionFromOpenToHalfOpen {
		return
	}
	cancel := make(chan struct{})
	cb.timerMu.Lock()
	cb.timerCancel = cancel
	cb.timerMu.Unlock()

	go func() {
		select {
		case <-cfg.Clock.After(cfg.WaitDurationInOpenState):
			if cb.State() == StateOpen {
				cb.transitionToHalfOpen()
			}
		case <-cancel:
		}
	}()
}

func (cb *CircuitBreaker) cancelTimer() {
	cb.timerMu.Lock()
	defer cb.timerMu.Unlock()
	if cb.timerCancel != nil {
		close(cb.timerCancel)
		cb.timerCancel = nil
	}
}

// --- decorate/execute (spec.md §6) ---

// Execute runs op if permission is granted, records the outcome, and
// returns its result. If the circuit denies the call, returns
// ErrCallNotPermitted without invoking op. A panic inside op is recorded as
// a failure and re-panicked, preserving the caller's stack trace, mirroring
// the teacher's Execute (internal/breaker/circuitbreaker.go).
func (cb *CircuitBreaker) Execute(op func() (any, error)) (any, error) {
	if err := cb.AcquirePermission(); err != nil {
		return nil, err
	}
	w := cb.metrics.Load()

	start := cb.Config().Clock.Now()
	result, err := cb.callWithPanicAsFailure(op, start, w)
	return result, err
}

// ExecuteContext is Execute with context cancellation support: a ctx that
// is already done is rejected before admission, and a call whose ctx is
// done by the time op returns yields ctx.Err(). The op's own outcome is
// still recorded as success or failure in that case.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, op func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cb.AcquirePermission(); err != nil {
		return nil, err
	}
	w := cb.metrics.Load()

	start := cb.Config().Clock.Now()
	result, err := cb.callWithPanicAsFailure(op, start, w)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return result, err
}

// callWithPanicAsFailure runs op and records its outcome against w, the
// metrics window captured right after permission was granted — not
// whatever window happens to be current once op returns — so a state
// transition racing a slow call can't steal its outcome into a new epoch.
func (cb *CircuitBreaker) callWithPanicAsFailure(op func() (any, error), start time.Time, w *window.Window) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			duration := cb.Config().Clock.Now().Sub(start)
			perr := panicAsError(r)
			cfg := cb.Config()
			outcome, ignored := cb.classifyError(cfg, perr)
			if ignored {
				cb.ReleasePermission()
				cb.publisher.Publish(EventIgnoredError, OutcomePayload{Duration: duration, Err: perr})
			} else {
				cb.finishCall(w, outcome, duration, perr)
			}
			panic(r)
		}
	}()

	result, err = op()
	duration := cb.Config().Clock.Now().Sub(start)
	if err != nil {
		cfg := cb.Config()
		outcome, ignored := cb.classifyError(cfg, err)
		if ignored {
			cb.ReleasePermission()
			cb.publisher.Publish(EventIgnoredError, OutcomePayload{Duration: duration, Err: err})
			return result, err
		}
		cb.finishCall(w, outcome, duration, err)
	} else {
		cb.finishCall(w, window.Success, duration, nil)
	}
	return result, err
}

func panicAsError(r any) error {
	if e, ok := r.(error); ok {
		return e
	}
	return &panicError{value: r}
}

type panicError struct{ value any }

func (p *panicError) Error() string { return "panic recovered" }

func safeIgnorePredicate(cfg Config, name string, err error) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			cfg.Logger.Warn("IgnoreException predicate panicked",
				zap.String("circuit_breaker", name), zap.Any("recovered", r))
			result = false
		}
	}()
	return cfg.IgnoreException(err)
}

func safeRecordPredicate(cfg Config, name string, err error) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			cfg.Logger.Warn("RecordException predicate panicked",
				zap.String("circuit_breaker", name), zap.Any("recovered", r))
			result = true // conservative: count as failure
		}
	}()
	return cfg.RecordException(err)
}
