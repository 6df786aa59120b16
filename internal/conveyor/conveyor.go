// Package conveyor recycles a fixed set of pre-allocated buffers between one
// producer goroutine and one consumer goroutine.
//
// A Conveyor holds two bounded FIFO rings. The free ring ("unloaded") holds
// buffers the producer may fill; the ready ring ("loaded") holds buffers the
// consumer may drain. Buffers move free -> producer -> ready -> consumer ->
// free and are never duplicated or released while the conveyor is in use.
// Each ring has its own mutex, held only while moving a reference, so a
// real-time producer never waits behind buffer copies.
package conveyor

import (
	"errors"
	"sync"
)

// ErrInvalid is returned by Fill when the conveyor has no capacity.
var ErrInvalid = errors.New("conveyor: invalid conveyor")

// ErrFillIncomplete is returned by Fill when fewer than Capacity clones fit
// in the free ring.
var ErrFillIncomplete = errors.New("conveyor: free ring could not hold every clone")

// ring is a bounded FIFO of buffer references.
type ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	count int
}

func newRing[T any](n int) *ring[T] {
	return &ring[T]{items: make([]T, n)}
}

func (r *ring[T]) available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *ring[T]) push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.items) {
		return false
	}
	r.items[(r.head+r.count)%len(r.items)] = v
	r.count++
	return true
}

func (r *ring[T]) pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.count--
	return v, true
}

// Conveyor is a two-ring buffer pool.
type Conveyor[T any] struct {
	capacity int
	unloaded *ring[T]
	loaded   *ring[T]
}

// New returns an empty conveyor able to circulate n buffers. Call Fill before
// use.
func New[T any](n int) *Conveyor[T] {
	if n < 0 {
		n = 0
	}
	return &Conveyor[T]{
		capacity: n,
		unloaded: newRing[T](n),
		loaded:   newRing[T](n),
	}
}

// IsValid reports whether the conveyor can hold any buffers.
func (c *Conveyor[T]) IsValid() bool {
	return c != nil && c.capacity > 0
}

// Capacity returns the number of buffers the conveyor circulates.
func (c *Conveyor[T]) Capacity() int { return c.capacity }

// Fill places Capacity buffers produced by clone into the free ring.
func (c *Conveyor[T]) Fill(clone func() T) error {
	if !c.IsValid() {
		return ErrInvalid
	}
	for k := 0; k < c.capacity; k++ {
		if !c.unloaded.push(clone()) {
			return ErrFillIncomplete
		}
	}
	return nil
}

// LoadReady reports whether a free buffer is available to the producer.
func (c *Conveyor[T]) LoadReady() bool { return c.unloaded.available() > 0 }

// TakeFree removes a free buffer for the producer to fill. It returns false
// without blocking when none is available.
func (c *Conveyor[T]) TakeFree() (T, bool) { return c.unloaded.pop() }

// Publish hands a filled buffer to the consumer.
func (c *Conveyor[T]) Publish(v T) bool { return c.loaded.push(v) }

// UnloadReady reports whether a filled buffer is waiting for the consumer.
func (c *Conveyor[T]) UnloadReady() bool { return c.loaded.available() > 0 }

// TakeReady removes the oldest published buffer. It returns false without
// blocking when none is waiting.
func (c *Conveyor[T]) TakeReady() (T, bool) { return c.loaded.pop() }

// Recycle returns a drained buffer to the free ring.
func (c *Conveyor[T]) Recycle(v T) bool { return c.unloaded.push(v) }

// FreeCount returns the number of buffers in the free ring.
func (c *Conveyor[T]) FreeCount() int { return c.unloaded.available() }

// ReadyCount returns the number of buffers in the ready ring.
func (c *Conveyor[T]) ReadyCount() int { return c.loaded.available() }

// Drain empties both rings, passing every buffer to release exactly once. It
// must only be called once producer and consumer have stopped.
func (c *Conveyor[T]) Drain(release func(T)) int {
	n := 0
	for {
		v, ok := c.loaded.pop()
		if !ok {
			break
		}
		if release != nil {
			release(v)
		}
		n++
	}
	for {
		v, ok := c.unloaded.pop()
		if !ok {
			break
		}
		if release != nil {
			release(v)
		}
		n++
	}
	return n
}
