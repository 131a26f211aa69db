package ident

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocator_StartsAtOne(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, 0, a.Last(), "nothing allocated yet")
	assert.Equal(t, 1, a.Allocate(0))
	assert.Equal(t, 2, a.Allocate(0))
	assert.Equal(t, 3, a.Allocate(0))
	assert.Equal(t, 3, a.Last())
}

func TestAllocator_ExplicitIDBypassesCounter(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, 1, a.Allocate(0))

	assert.Equal(t, 7, a.Allocate(7), "explicit id returned unchanged")
	assert.Equal(t, 1, a.Last(), "explicit id must not move the counter")

	assert.Equal(t, 2, a.Allocate(0))
}

func TestAllocator_NonPositiveExplicitAllocates(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, 1, a.Allocate(-4))
	assert.Equal(t, 2, a.Allocate(0))
}

func TestAllocator_ExplicitIDsNotDeduplicated(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, 1, a.Allocate(1))
	assert.Equal(t, 1, a.Allocate(0), "counter ignores explicit ids")
}

func TestAllocator_ResumesAt(t *testing.T) {
	a := NewAllocatorAt(41)
	assert.Equal(t, 42, a.Allocate(0))
}

func TestAllocator_IndependentInstances(t *testing.T) {
	a, b := NewAllocator(), NewAllocator()
	assert.Equal(t, 1, a.Allocate(0))
	assert.Equal(t, 1, b.Allocate(0))
	assert.Equal(t, 2, a.Allocate(0))
}

func TestAllocator_ConcurrentUnique(t *testing.T) {
	a := NewAllocator()
	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	ids := make(chan int, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ids <- a.Allocate(0)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, goroutines*perGoroutine, a.Last())
}
