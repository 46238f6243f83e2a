package buffers

import (
	"sync"
	"sync/atomic"
)

// IdGenerator allocates process-wide unique, monotonically increasing
// buffer ids. Safe for concurrent use from multiple destination locks.
type IdGenerator struct {
	last int64
}

// Next returns the next id, starting from 1.
func (g *IdGenerator) Next() int64 {
	return atomic.AddInt64(&g.last, 1)
}

func (g *IdGenerator) advanceTo(id int64) {
	for {
		cur := atomic.LoadInt64(&g.last)
		if cur >= id || atomic.CompareAndSwapInt64(&g.last, cur, id) {
			return
		}
	}
}

// ReadyQueue is the ordered FIFO of closed buffers awaiting shipment.
// Buffers leave the queue only through successful consumption, strictly
// in insertion order.
type ReadyQueue struct {
	ids *IdGenerator

	mu      sync.Mutex
	buffers []*Buffer
}

func newReadyQueue(ids *IdGenerator) *ReadyQueue {
	return &ReadyQueue{ids: ids}
}

// ready closes b with the next id and appends it to the tail.
func (q *ReadyQueue) ready(b *Buffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b.close(q.ids.Next())
	q.buffers = append(q.buffers, b)
}

// head returns the oldest buffer without removing it, nil when empty.
func (q *ReadyQueue) head() *Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buffers) == 0 {
		return nil
	}
	return q.buffers[0]
}

// pop removes and returns the oldest buffer, nil when empty.
func (q *ReadyQueue) pop() *Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buffers) == 0 {
		return nil
	}
	b := q.buffers[0]
	q.buffers = q.buffers[1:]
	return b
}

func (q *ReadyQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffers)
}

func (q *ReadyQueue) IsEmpty() bool {
	return q.Size() == 0
}
