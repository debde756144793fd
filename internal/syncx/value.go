package syncx

import "sync/atomic"

// Value is a typed atomic cell. Readers never block writers.
// The zero Value holds the zero T.
type Value[T any] struct {
	p atomic.Pointer[T]
}

// NewValue creates a cell holding v.
func NewValue[T any](v T) *Value[T] {
	c := &Value[T]{}
	c.Store(v)
	return c
}

// Load returns the current value.
func (c *Value[T]) Load() T {
	if p := c.p.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Store replaces the current value.
func (c *Value[T]) Store(v T) {
	c.p.Store(&v)
}

// Swap stores v and returns the previous value.
func (c *Value[T]) Swap(v T) T {
	if old := c.p.Swap(&v); old != nil {
		return *old
	}
	var zero T
	return zero
}
