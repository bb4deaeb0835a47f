// Package lfq implements the bounded multi-producer multi-consumer queue
// that carries tag.Event records between RX shards, the master scheduler,
// and worker shards (spec.md C3). No publicly fetchable third-party
// lock-free queue module is usable here (see DESIGN.md), so this package
// reimplements the Vyukov-style sequence-tagged ring that the retrieved
// pack's own queue implementations converge on.
package lfq

import (
	"runtime"
	"sync/atomic"
)

const goschedEvery = 64

type cell[T any] struct {
	seq  atomic.Uint64
	_    [56]byte // pad the sequence counter off the data to avoid false sharing
	data T
}

// Queue is a bounded MPMC ring of capacity a power of two.
type Queue[T any] struct {
	_        [64]byte
	mask     uint64
	capacity uint64
	cells    []cell[T]
	_        [64]byte
	tail     atomic.Uint64 // next slot a producer will try to claim
	_        [64]byte
	head     atomic.Uint64 // next slot a consumer will try to claim
	_        [64]byte
}

// New creates a queue with the given capacity, rounded up to a power of
// two, per spec.md §4.5's backpressure sizing (F × symbols × entities ×
// headroom is computed by the caller and passed in here).
func New[T any](capacity int) *Queue[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &Queue[T]{
		mask:     uint64(size - 1),
		capacity: uint64(size),
		cells:    make([]cell[T], size),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// Capacity returns the fixed physical capacity.
func (q *Queue[T]) Capacity() int { return int(q.capacity) }

// TryEnqueue attempts a single non-blocking push. Returns false if full.
func (q *Queue[T]) TryEnqueue(v T) bool {
	var spins uint32
	for {
		pos := q.tail.Load()
		c := &q.cells[pos&q.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(pos)

		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				c.data = v
				c.seq.Store(pos + 1)
				return true
			}
			spins++
		case diff < 0:
			return false
		default:
			spins++
		}
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Enqueue blocks (spinning) until the push succeeds. Per spec.md §4.5,
// the master falls back to this after a TryEnqueue failure, logging a
// warning at the call site; sustained blocking here is the fatal case.
func (q *Queue[T]) Enqueue(v T) {
	for !q.TryEnqueue(v) {
		runtime.Gosched()
	}
}

// TryDequeue attempts a single non-blocking pop. Returns ok=false if
// empty — the only suspension point on a worker's hot loop (spec.md §5).
func (q *Queue[T]) TryDequeue() (v T, ok bool) {
	var spins uint32
	for {
		pos := q.head.Load()
		c := &q.cells[pos&q.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(pos+1)

		switch {
		case diff == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				v = c.data
				c.seq.Store(pos + q.capacity)
				return v, true
			}
			spins++
		case diff < 0:
			return v, false
		default:
			spins++
		}
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// DequeueBulk drains up to len(out) ready items without blocking,
// returning the count actually filled. Used by the master's bulk-dequeue
// loop (spec.md §4.5).
func (q *Queue[T]) DequeueBulk(out []T) int {
	n := 0
	for n < len(out) {
		v, ok := q.TryDequeue()
		if !ok {
			break
		}
		out[n] = v
		n++
	}
	return n
}
