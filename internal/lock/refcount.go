// Package lock holds small shared-ownership primitives.
package lock

// A shared database connection stays open while any SQLArray holds a
// reference; releasing the last reference closes it.

import (
	"fmt"
	"sync/atomic"
)

type RefCount struct {
	count atomic.Int32
}

// NewRefCount starts with one reference owned by the creator.
func NewRefCount() *RefCount {
	r := &RefCount{}
	r.count.Store(1)
	return r
}

// Acquire adds a reference and returns the new count.
func (r *RefCount) Acquire() int32 {
	return r.count.Add(1)
}

// Release drops a reference and reports whether it was the last one.
func (r *RefCount) Release() bool {
	n := r.count.Add(-1)
	if n < 0 {
		panic("refcount dropped below zero")
	}
	return n == 0
}

func (r *RefCount) Load() int32 {
	return r.count.Load()
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount: %d", r.Load())
}
