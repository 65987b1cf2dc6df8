package workers

import "sync"

// Outbox is an unbounded FIFO queue with a single blocking consumer.
// The ring doubles when full so producers never wait on a slow consumer.
type Outbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	count  int
	closed bool
}

func NewOutbox[T any](initialCapacity int) *Outbox[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	o := &Outbox[T]{buf: make([]T, initialCapacity)}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Push appends an item. It returns false once the outbox is closed.
func (o *Outbox[T]) Push(item T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if o.count == len(o.buf) {
		o.grow()
	}
	o.buf[(o.head+o.count)%len(o.buf)] = item
	o.count++
	o.cond.Signal()
	return true
}

// Pop blocks until an item is available. It returns false once the outbox is closed.
func (o *Outbox[T]) Pop() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.count == 0 && !o.closed {
		o.cond.Wait()
	}
	var zero T
	if o.closed {
		return zero, false
	}
	item := o.buf[o.head]
	o.buf[o.head] = zero
	o.head = (o.head + 1) % len(o.buf)
	o.count--
	return item, true
}

// Close wakes the consumer and discards what is still queued.
// It returns the number of discarded items and is safe to call twice.
func (o *Outbox[T]) Close() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0
	}
	o.closed = true
	discarded := o.count
	o.buf = nil
	o.head, o.count = 0, 0
	o.cond.Broadcast()
	return discarded
}

func (o *Outbox[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// grow must be called with the lock held.
func (o *Outbox[T]) grow() {
	next := make([]T, len(o.buf)*2)
	n := copy(next, o.buf[o.head:])
	copy(next[n:], o.buf[:o.head])
	o.buf = next
	o.head = 0
}
