// Package window implements the Sliding-Window Metrics substrate shared by
// the circuit breaker and the adaptive bulkhead: a bounded set of recent
// call outcomes (count-based or time-based) exposing failure/slow-call
// rates once enough samples have been observed.
//
// The count-based variant keeps running aggregates, add-on-write /
// subtract-on-evict, so Record and Snapshot are O(1); the time-based
// variant sums its live one-second epochs on Snapshot. Both guard Record
// and Snapshot with a mutex. This is the one part of the library that is
// deliberately stdlib-only: it is the bespoke ring-buffer design the spec
// calls out as the hard part, not a stand-in for a missing library.
package window

import (
	"sync"
	"sync/atomic"
	"time"
)

// NotEnoughData is the sentinel failure/slow-call rate returned by Snapshot
// until MinimumNumberOfCalls samples have been recorded.
const NotEnoughData = -1.0

// Outcome classifies one recorded call. Ignored calls are never entered
// into a window (spec.md §3: "Ignored never entered").
type Outcome int

const (
	Success Outcome = iota
	Failure
)

// Snapshot is a consistent, point-in-time view of a window's aggregates.
type Snapshot struct {
	TotalCalls      int
	SuccessfulCalls int
	FailedCalls     int
	SlowCalls       int
	TotalDuration   time.Duration
	FailureRate     float64 // percentage [0,100], or NotEnoughData
	SlowCallRate    float64 // percentage [0,100], or NotEnoughData
}

// Window is satisfied by both the count-based and time-based
// implementations below.
type Window interface {
	// Record enters one outcome into the window, given whether its
	// duration crossed the slow-call threshold.
	Record(outcome Outcome, duration time.Duration, slow bool)
	// Snapshot computes the current aggregate view.
	Snapshot() Snapshot
	// Reset clears all recorded calls.
	Reset()
}

func snapshotFrom(total, success, failed, slow int, dur time.Duration, minimumCalls int) Snapshot {
	s := Snapshot{
		TotalCalls:      total,
		SuccessfulCalls: success,
		FailedCalls:     failed,
		SlowCalls:       slow,
		TotalDuration:   dur,
		FailureRate:     NotEnoughData,
		SlowCallRate:    NotEnoughData,
	}
	if total >= minimumCalls && total > 0 {
		s.FailureRate = 100 * float64(failed) / float64(total)
		s.SlowCallRate = 100 * float64(slow) / float64(total)
	}
	return s
}

// slot is one recorded call, stored in either ring implementation.
type slot struct {
	occupied bool
	outcome  Outcome
	slow     bool
	duration time.Duration
}

// CountBased is a ring buffer of N fixed-size slots. A monotonic counter
// selects slot (counter mod N), evicting the prior occupant; aggregates are
// maintained by add-on-write / subtract-on-evict so Snapshot is O(1).
type CountBased struct {
	mu           sync.Mutex
	slots        []slot
	cursor       int
	minimumCalls int

	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64
	slowN   atomic.Int64
	dur     atomic.Int64 // nanoseconds
}

// NewCountBased creates a count-based window of the given size.
// minimumCalls is the minimumNumberOfCalls threshold from spec.md §6.
func NewCountBased(size, minimumCalls int) *CountBased {
	if size < 1 {
		size = 1
	}
	return &CountBased{
		slots:        make([]slot, size),
		minimumCalls: minimumCalls,
	}
}

func (w *CountBased) Record(outcome Outcome, duration time.Duration, slow bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.cursor % len(w.slots)
	w.cursor++

	prev := w.slots[idx]
	if prev.occupied {
		w.total.Add(-1)
		if prev.outcome == Success {
			w.success.Add(-1)
		} else {
			w.failed.Add(-1)
		}
		if prev.slow {
			w.slowN.Add(-1)
		}
		w.dur.Add(-int64(prev.duration))
	}

	w.slots[idx] = slot{occupied: true, outcome: outcome, slow: slow, duration: duration}

	w.total.Add(1)
	if outcome == Success {
		w.success.Add(1)
	} else {
		w.failed.Add(1)
	}
	if slow {
		w.slowN.Add(1)
	}
	w.dur.Add(int64(duration))
}

func (w *CountBased) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return snapshotFrom(
		int(w.total.Load()), int(w.success.Load()), int(w.failed.Load()), int(w.slowN.Load()),
		time.Duration(w.dur.Load()), w.minimumCalls,
	)
}

func (w *CountBased) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.slots {
		w.slots[i] = slot{}
	}
	w.cursor = 0
	w.total.Store(0)
	w.success.Store(0)
	w.failed.Store(0)
	w.slowN.Store(0)
	w.dur.Store(0)
}

// epoch is one second-wide bucket of aggregated outcomes.
type epoch struct {
	second   int64 // unix seconds this bucket represents; 0 == empty
	total    int
	success  int
	failed   int
	slow     int
	duration time.Duration
}

// TimeBased is a ring of one-second partial aggregates spanning a window of
// N seconds. Record clears stale epochs (older than now-N seconds) before
// incrementing the current epoch; Snapshot sums all live epochs.
type TimeBased struct {
	mu           sync.Mutex
	epochs       []epoch
	windowSecs   int
	minimumCalls int
	now          func() time.Time
}

// NewTimeBased creates a time-based window spanning windowSeconds seconds.
func NewTimeBased(windowSeconds, minimumCalls int, now func() time.Time) *TimeBased {
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	if now == nil {
		now = time.Now
	}
	return &TimeBased{
		epochs:       make([]epoch, windowSeconds),
		windowSecs:   windowSeconds,
		minimumCalls: minimumCalls,
		now:          now,
	}
}

func (w *TimeBased) Record(outcome Outcome, duration time.Duration, slow bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sec := w.now().Unix()
	w.evictStaleLocked(sec)

	idx := int(((sec % int64(w.windowSecs)) + int64(w.windowSecs)) % int64(w.windowSecs))
	e := &w.epochs[idx]
	if e.second != sec {
		*e = epoch{second: sec}
	}
	e.total++
	if outcome == Success {
		e.success++
	} else {
		e.failed++
	}
	if slow {
		e.slow++
	}
	e.duration += duration
}

// evictStaleLocked clears any epoch older than now-windowSecs seconds. Must
// be called with mu held.
func (w *TimeBased) evictStaleLocked(nowSec int64) {
	cutoff := nowSec - int64(w.windowSecs)
	for i := range w.epochs {
		if w.epochs[i].second != 0 && w.epochs[i].second <= cutoff {
			w.epochs[i] = epoch{}
		}
	}
}

func (w *TimeBased) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	sec := w.now().Unix()
	w.evictStaleLocked(sec)

	var total, success, failed, slow int
	var dur time.Duration
	for _, e := range w.epochs {
		if e.second == 0 {
			continue
		}
		total += e.total
		success += e.success
		failed += e.failed
		slow += e.slow
		dur += e.duration
	}
	return snapshotFrom(total, success, failed, slow, dur, w.minimumCalls)
}

func (w *TimeBased) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.epochs {
		w.epochs[i] = epoch{}
	}
}
