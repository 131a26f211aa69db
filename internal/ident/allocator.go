// Package ident allocates instance identifiers for bridged stores.
package ident

import "sync/atomic"

// Allocator hands out instance ids from a monotonic counter.
//
// Ids start at 1 and are never reused for the Allocator's lifetime.
// Explicit ids supplied by callers bypass the counter entirely; the
// Allocator does not track them, so collisions between explicit ids and
// allocated ones are the caller's concern.
//
// Thread-safety: Allocate is safe for concurrent use (atomic operations).
type Allocator struct {
	next atomic.Int64
}

// NewAllocator creates an allocator whose first allocated id is 1.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// NewAllocatorAt creates an allocator that resumes after last.
// Used when a persisted annotation log already holds ids up to last.
func NewAllocatorAt(last int64) *Allocator {
	a := &Allocator{}
	a.next.Store(last)
	return a
}

// Allocate returns explicit unchanged when it is a positive id, otherwise
// the next counter value. The counter advances exactly once per
// non-explicit call.
func (a *Allocator) Allocate(explicit int) int {
	if explicit > 0 {
		return explicit
	}
	return int(a.next.Add(1))
}

// Last returns the most recently allocated id, 0 when none was allocated.
func (a *Allocator) Last() int {
	return int(a.next.Load())
}
