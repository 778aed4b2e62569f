package bulkheadcore

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shieldrail/resilience/event"
)

// ErrBulkheadFull is returned by Pool.Submit when every worker is busy and
// the backlog queue is also at capacity (spec.md §4.4: "a full-signal and
// produces BulkheadFull").
var ErrBulkheadFull = errors.New("bulkheadcore: bulkhead full")

// job is one unit of work submitted to a Pool, together with the channel
// its single result is delivered on.
type job struct {
	task func() (any, error)
	done chan result
}

type result struct {
	value any
	err   error
}

// Future is the asynchronous handle returned by Pool.Submit (spec.md §4.4:
// "Returns an asynchronous handle to the caller").
type Future struct {
	done chan result
}

// Wait blocks until the submitted task completes and returns its result.
func (f *Future) Wait() (any, error) {
	r := <-f.done
	return r.value, r.err
}

// Pool is the fixed-thread-pool bulkhead variant (spec.md §4.4): a bounded
// set of worker goroutines, CoreThreadPoolSize..MaxThreadPoolSize, backed by
// a QueueCapacity-bounded backlog channel. Above-core workers that sit idle
// for KeepAliveDuration exit, mirroring a Java ThreadPoolExecutor's
// cached-thread behavior adapted to goroutines.
type Pool struct {
	cfg   PoolConfig
	queue chan job
	pub   *event.Publisher

	mu      sync.Mutex
	workers int
	idle    int

	closed atomic.Bool
}

// NewPool constructs a Pool bulkhead named name and starts its
// CoreThreadPoolSize permanent workers.
func NewPool(name string, cfg PoolConfig) *Pool {
	cfg = cfg.withDefaults()
	cfg.validate()

	p := &Pool{
		cfg:   cfg,
		queue: make(chan job, cfg.QueueCapacity),
		pub:   event.New(name, cfg.Logger),
	}
	for i := 0; i < cfg.CoreThreadPoolSize; i++ {
		p.spawnWorker(true)
	}
	return p
}

// EventPublisher returns the publisher for this bulkhead's lifecycle events.
func (p *Pool) EventPublisher() *event.Publisher { return p.pub }

// Submit enqueues task for execution by a pool worker, growing the pool
// (within MaxThreadPoolSize) if every existing worker is busy, and returns
// ErrBulkheadFull if the queue is also saturated.
func (p *Pool) Submit(task func() (any, error)) (*Future, error) {
	if p.closed.Load() {
		return nil, ErrBulkheadFull
	}

	j := job{task: task, done: make(chan result, 1)}

	p.mu.Lock()
	if p.idle == 0 && p.workers < p.cfg.MaxThreadPoolSize {
		p.spawnWorkerLocked(false)
	}
	p.mu.Unlock()

	select {
	case p.queue <- j:
		p.pub.Publish(EventCallPermitted, nil)
		return &Future{done: j.done}, nil
	default:
		p.pub.Publish(EventCallRejected, nil)
		return nil, ErrBulkheadFull
	}
}

func (p *Pool) spawnWorker(core bool) {
	p.mu.Lock()
	p.spawnWorkerLocked(core)
	p.mu.Unlock()
}

func (p *Pool) spawnWorkerLocked(core bool) {
	p.workers++
	p.idle++
	go p.runWorker(core)
}

func (p *Pool) runWorker(core bool) {
	idleTimer := time.NewTimer(p.cfg.KeepAliveDuration)
	defer idleTimer.Stop()

	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				p.exitWorker()
				return
			}
			p.markBusy()
			v, err := j.task()
			j.done <- result{value: v, err: err}
			p.pub.Publish(EventCallFinished, nil)
			p.markIdle()
			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			idleTimer.Reset(p.cfg.KeepAliveDuration)

		case <-idleTimer.C:
			if core {
				idleTimer.Reset(p.cfg.KeepAliveDuration)
				continue
			}
			p.exitWorker()
			return
		}
	}
}

func (p *Pool) markBusy() {
	p.mu.Lock()
	p.idle--
	p.mu.Unlock()
}

func (p *Pool) markIdle() {
	p.mu.Lock()
	p.idle++
	p.mu.Unlock()
}

func (p *Pool) exitWorker() {
	p.mu.Lock()
	p.workers--
	p.idle--
	p.mu.Unlock()
}

// Shutdown stops accepting new submissions and closes the backlog queue,
// letting every already-queued job drain before its workers exit.
func (p *Pool) Shutdown() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.queue)
	}
}
