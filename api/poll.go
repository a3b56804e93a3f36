// Package api
// Author: momentics <momentics@gmail.com>
//
// Edge-triggered readiness poller abstraction shared by client and listener
// pools.

package api

// Poller demultiplexes descriptor readiness. Wait may be called from many
// goroutines concurrently; each readiness edge is delivered to exactly one
// waiter. One-shot registrations stay disarmed until Rearm.
type Poller interface {
	// Add registers fd with the given interest mask and opaque payload.
	Add(fd int, payload uint64, mask EventMask) error

	// AddOneShot registers fd so that each edge is delivered once and the
	// descriptor stays disarmed until Rearm.
	AddOneShot(fd int, payload uint64, mask EventMask) error

	// Rearm re-enables notification for a one-shot descriptor after its
	// handler has drained the readiness condition.
	Rearm(fd int, payload uint64, mask EventMask) error

	// Remove drops the registration for fd.
	Remove(fd int) error

	// Wait blocks until events arrive or the poller is closed, filling evs
	// and returning the count. After Close it returns ErrPollerClosed.
	Wait(evs []Event) (int, error)

	// Close wakes every waiter terminally. Idempotent.
	Close() error
}
