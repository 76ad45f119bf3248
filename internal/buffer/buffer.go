// Package buffer provides an unbounded FIFO that decouples the socket read
// loop from slower consumers (streams, the recorder).
package buffer

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by ReceiveContext once the buffer is closed and empty.
var ErrClosed = errors.New("buffer closed")

// growThreshold is the fill percentage at which capacity doubles.
const growThreshold = 70

// Growable is a thread-safe ring buffer that doubles its capacity when it
// reaches 70% full. Send never blocks.
type Growable[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int // read position
	tail   int // write position
	count  int
	closed bool

	// Stats
	sent     int64
	received int64
	resizes  int
}

// Stats contains buffer statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalSent     int64 // items accepted by Send
	TotalReceived int64 // items handed to consumers
	ResizeCount   int
}

// New creates a buffer with the given initial capacity.
func New[T any](initialCapacity int) *Growable[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Growable[T]{
		items: make([]T, initialCapacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item. Returns false if the buffer is closed.
func (b *Growable[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (len(b.items) * growThreshold) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % len(b.items)
	b.count++
	b.sent++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed.
// Returns false once the buffer is closed and drained.
func (b *Growable[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// ReceiveContext is Receive with cancellation. It returns ctx.Err() when the
// context ends first and ErrClosed when the buffer is closed and drained.
func (b *Growable[T]) ReceiveContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for b.count == 0 && !b.closed {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		b.cond.Wait()
	}
	if b.count == 0 {
		return zero, ErrClosed
	}
	return b.pop(), nil
}

// TryReceive returns the next item without blocking.
func (b *Growable[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items (all items when max <= 0).
func (b *Growable[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting items and wakes all blocked receivers. Items already
// buffered can still be received. Close is idempotent.
func (b *Growable[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (b *Growable[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of buffered items.
func (b *Growable[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Growable[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stats returns a snapshot of buffer statistics.
func (b *Growable[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:         b.count,
		Capacity:      len(b.items),
		TotalSent:     b.sent,
		TotalReceived: b.received,
		ResizeCount:   b.resizes,
	}
}

// pop removes the head item. Must be called with lock held and count > 0.
func (b *Growable[T]) pop() T {
	item := b.items[b.head]
	var zero T
	b.items[b.head] = zero // release for GC
	b.head = (b.head + 1) % len(b.items)
	b.count--
	b.received++
	return item
}

// grow doubles capacity, unwrapping the ring. Must be called with lock held.
func (b *Growable[T]) grow() {
	next := make([]T, len(b.items)*2)

	if b.count > 0 {
		if b.head < b.tail {
			copy(next, b.items[b.head:b.tail])
		} else {
			n := copy(next, b.items[b.head:])
			copy(next[n:], b.items[:b.tail])
		}
	}

	b.items = next
	b.head = 0
	b.tail = b.count
	b.resizes++
}
