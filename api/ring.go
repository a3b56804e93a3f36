// Package api
// Author: momentics@gmail.com
//
// Bounded lock-free ring contract backing the client free list.

package api

// Ring is a fixed-capacity concurrent queue. Enqueue past capacity and
// Dequeue past emptiness are caller contract violations; the free-list usage
// pattern (at most Capacity values in flight) never triggers either.
type Ring[T any] interface {
	// Enqueue appends an item.
	Enqueue(item T)
	// Dequeue removes and returns an item. FIFO order across concurrent
	// claimants is not guaranteed.
	Dequeue() T
	// Capacity returns the fixed capacity.
	Capacity() int
	// Destroy releases the backing mapping. Idempotent.
	Destroy()
}
