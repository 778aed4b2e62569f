package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_ComputeIfAbsentReturnsSameInstance(t *testing.T) {
	r := New[*int]()

	first := r.ComputeIfAbsent("svc", func() *int { v := 1; return &v })
	second := r.ComputeIfAbsent("svc", func() *int { v := 2; return &v })

	assert.Same(t, first, second)
	assert.Equal(t, 1, *second)
}

func TestRegistry_ConcurrentFirstAccessConstructsOnce(t *testing.T) {
	r := New[*int]()

	var constructions atomic.Int64
	var wg sync.WaitGroup
	results := make([]*int, 64)

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = r.ComputeIfAbsent("shared", func() *int {
				constructions.Add(1)
				v := 42
				return &v
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), constructions.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

func TestRegistry_FindMissing(t *testing.T) {
	r := New[*int]()
	_, ok := r.Find("missing")
	assert.False(t, ok)
}

func TestRegistry_RemoveAndNames(t *testing.T) {
	r := New[*int]()
	r.ComputeIfAbsent("a", func() *int { v := 1; return &v })
	r.ComputeIfAbsent("b", func() *int { v := 2; return &v })

	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())

	r.Remove("a")
	assert.ElementsMatch(t, []string{"b"}, r.Names())
}
