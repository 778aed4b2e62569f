package bulkheadcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreBoundsConcurrentAdmission(t *testing.T) {
	b := NewSemaphore("t", SemaphoreConfig{MaxConcurrentCalls: 2})

	require.True(t, b.TryAcquirePermission())
	require.True(t, b.TryAcquirePermission())
	assert.False(t, b.TryAcquirePermission())

	b.OnComplete()
	assert.True(t, b.TryAcquirePermission())
}

func TestSemaphoreAcquirePermissionBlocksUntilRelease(t *testing.T) {
	b := NewSemaphore("t", SemaphoreConfig{MaxConcurrentCalls: 1, MaxWaitDuration: time.Second})
	require.True(t, b.TryAcquirePermission())

	acquired := make(chan bool, 1)
	go func() {
		acquired <- b.AcquirePermission(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	b.OnComplete()

	select {
	case ok := <-acquired:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AcquirePermission never returned")
	}
}

func TestSemaphoreAcquirePermissionTimesOut(t *testing.T) {
	b := NewSemaphore("t", SemaphoreConfig{MaxConcurrentCalls: 1, MaxWaitDuration: 10 * time.Millisecond})
	require.True(t, b.TryAcquirePermission())

	start := time.Now()
	ok := b.AcquirePermission(context.Background())
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestSemaphoreChangeConfigGrowsCapacity(t *testing.T) {
	b := NewSemaphore("t", SemaphoreConfig{MaxConcurrentCalls: 1})
	require.True(t, b.TryAcquirePermission())
	assert.False(t, b.TryAcquirePermission())

	b.ChangeConfig(2)
	assert.True(t, b.TryAcquirePermission())
}

func TestSemaphoreConcurrentAcquireNeverExceedsCap(t *testing.T) {
	b := NewSemaphore("t", SemaphoreConfig{MaxConcurrentCalls: 5})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryAcquirePermission() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
}

func TestPoolSubmitRunsTaskAndReturnsResult(t *testing.T) {
	p := NewPool("t", PoolConfig{CoreThreadPoolSize: 1, MaxThreadPoolSize: 1, QueueCapacity: 1})
	defer p.Shutdown()

	fut, err := p.Submit(func() (any, error) { return 42, nil })
	require.NoError(t, err)

	v, err := fut.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPoolRejectsWhenQueueAndWorkersSaturated(t *testing.T) {
	p := NewPool("t", PoolConfig{CoreThreadPoolSize: 1, MaxThreadPoolSize: 1, QueueCapacity: 0})
	defer p.Shutdown()

	block := make(chan struct{})
	_, err := p.Submit(func() (any, error) { <-block; return nil, nil })
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond) // let the worker pick up the first task

	_, err = p.Submit(func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrBulkheadFull)

	close(block)
}

func TestPoolGrowsUpToMaxThreadPoolSize(t *testing.T) {
	p := NewPool("t", PoolConfig{CoreThreadPoolSize: 1, MaxThreadPoolSize: 3, QueueCapacity: 1})
	defer p.Shutdown()

	block := make(chan struct{})
	task := func() (any, error) { <-block; return nil, nil }

	f1, err := p.Submit(task)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	f2, err := p.Submit(task)
	require.NoError(t, err)

	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()
	assert.Equal(t, 2, workers)

	close(block)
	_, _ = f1.Wait()
	_, _ = f2.Wait()
}
