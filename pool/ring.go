//go:build linux

// File: pool/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DoubleMapRing is a bounded circular queue with atomic head/tail counters
// over a doubly-mapped region. Claims are a single fetch-add; counters are
// reduced by the capacity only when a claim crosses the capacity boundary,
// which the aliased second mapping makes safe without copying elements.

package pool

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/internal/memmap"
)

// Ensure compile-time interface compliance.
var _ api.Ring[uint32] = (*DoubleMapRing[uint32])(nil)

// DoubleMapRing is a fixed-capacity concurrent queue. T must be a plain
// value type without Go pointers: the backing store lives outside the
// managed heap.
//
// The queue does not track emptiness or fullness. Callers keep at most
// Capacity values in flight and never dequeue more than they have enqueued;
// the free-list usage in server.ClientPool satisfies both by construction.
// Under that contract every dequeued value has exactly one owner and no
// enqueue is lost. FIFO order across concurrent claimants is not guaranteed.
type DoubleMapRing[T any] struct {
	base unsafe.Pointer
	data []T // doubled view, len == 2*cap
	cap  int64

	alive atomic.Bool

	head atomic.Int64
	_    [64]byte // padding for hot/cold separation
	tail atomic.Int64
	_    [64]byte
}

// NewDoubleMapRing allocates a ring of at least capHint elements, expanded
// so the element storage is a whole number of pages.
func NewDoubleMapRing[T any](capHint int) (*DoubleMapRing[T], error) {
	var zero T
	unit := unsafe.Sizeof(zero)

	base, count, err := memmap.Alloc(unit, capHint)
	if err != nil {
		return nil, err
	}
	r := &DoubleMapRing[T]{
		base: base,
		data: unsafe.Slice((*T)(base), 2*count),
		cap:  int64(count),
	}
	r.alive.Store(true)
	return r, nil
}

// Capacity returns the rounded element capacity.
func (r *DoubleMapRing[T]) Capacity() int {
	return int(r.cap)
}

// Enqueue appends an item. The fetch-add reserves a slot; a claim that
// crosses the capacity boundary triggers the rollover reduction. The
// reserved index stays below 2*cap while the usage contract holds, so the
// store lands inside the doubled view and aliases its reduced position.
func (r *DoubleMapRing[T]) Enqueue(item T) {
	t := r.tail.Add(1) - 1
	r.data[t] = item
	t++

	if t >= r.cap {
		r.rollover(&r.tail, t)
	}
}

// Dequeue removes and returns an item. Without concurrent claimants this is
// the oldest item; with them, FIFO order is not guaranteed.
func (r *DoubleMapRing[T]) Dequeue() T {
	h := r.head.Add(1) - 1
	item := r.data[h]
	h++

	if h >= r.cap {
		r.rollover(&r.head, h)
	}
	return item
}

// rollover reduces a counter by the capacity after a boundary crossing.
// The crosser spins until no later claim is outstanding, then attempts a
// single CAS subtraction; the newest crosser wins and earlier ones abandon
// their attempt on CAS failure. Progress-bounded, not wait-free.
func (r *DoubleMapRing[T]) rollover(ctr *atomic.Int64, observed int64) {
	for ctr.Load() > observed {
		runtime.Gosched()
	}
	ctr.CompareAndSwap(observed, observed-r.cap)
}

// Destroy tears down the doubled mapping. The first call wins; later calls
// are no-ops. Callers must not touch the ring afterwards.
func (r *DoubleMapRing[T]) Destroy() {
	if r.alive.CompareAndSwap(true, false) {
		var zero T
		_ = memmap.Free(r.base, unsafe.Sizeof(zero), int(r.cap))
		r.data = nil
	}
}
