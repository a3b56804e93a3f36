//go:build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/api"
)

// Ensure compile-time interface compliance.
var _ api.Poller = (*Poller)(nil)

// wakePayload tags events from the shutdown eventfd. Ordinary payloads are
// slot indices or descriptors and never reach this value.
const wakePayload = ^uint64(0)

// wakeBytes is the 8-byte counter increment written to the eventfd.
var wakeBytes = []byte{1, 0, 0, 0, 0, 0, 0, 0}

// Poller is an edge-triggered epoll demultiplexer safe for concurrent Wait
// calls. The kernel delivers each readiness edge to exactly one waiter.
type Poller struct {
	epfd   int
	wakefd int
	closed atomic.Bool
}

// New creates an epoll instance plus its shutdown eventfd.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w (%v)", api.ErrResourceExhausted, err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w (%v)", api.ErrResourceExhausted, err)
	}

	// Level-triggered and never drained: once written, every waiter keeps
	// waking until it observes the sentinel and exits.
	ev := packEvent(unix.EPOLLIN, wakePayload)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(epfd)
		unix.Close(wakefd)
		return nil, fmt.Errorf("reactor: register eventfd: %w (%v)", api.ErrResourceExhausted, err)
	}
	return &Poller{epfd: epfd, wakefd: wakefd}, nil
}

// Add registers fd edge-triggered with the given interest mask.
func (p *Poller) Add(fd int, payload uint64, mask api.EventMask) error {
	ev := packEvent(maskToEpoll(mask)|unix.EPOLLET, payload)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// AddOneShot registers fd so one edge is delivered to one waiter and the
// descriptor stays disarmed until Rearm. Registration is the release store
// publishing the slot behind payload: EPOLL_CTL_ADD synchronizes with the
// waiter that receives the event.
func (p *Poller) AddOneShot(fd int, payload uint64, mask api.EventMask) error {
	ev := packEvent(maskToEpoll(mask)|unix.EPOLLET|unix.EPOLLONESHOT, payload)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Rearm re-enables a one-shot registration after its drain returned.
func (p *Poller) Rearm(fd int, payload uint64, mask api.EventMask) error {
	ev := packEvent(maskToEpoll(mask)|unix.EPOLLET|unix.EPOLLONESHOT, payload)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove drops the registration for fd.
func (p *Poller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until readiness events arrive, filling evs. Returns
// api.ErrPollerClosed once Close has run.
func (p *Poller) Wait(evs []api.Event) (int, error) {
	if len(evs) == 0 {
		return 0, fmt.Errorf("reactor: empty event buffer")
	}
	raw := make([]unix.EpollEvent, len(evs))
	for {
		if p.closed.Load() {
			return 0, api.ErrPollerClosed
		}
		n, err := unix.EpollWait(p.epfd, raw, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if p.closed.Load() {
				return 0, api.ErrPollerClosed
			}
			return 0, err
		}

		out := 0
		for i := 0; i < n; i++ {
			payload := unpackPayload(raw[i])
			if payload == wakePayload {
				return 0, api.ErrPollerClosed
			}
			evs[out] = api.Event{Mask: epollToMask(raw[i].Events), Payload: payload}
			out++
		}
		if out > 0 {
			return out, nil
		}
	}
}

// Close wakes all waiters terminally. Idempotent; the first call wins.
// Descriptors are released by Release once no waiter can still be inside
// Wait.
func (p *Poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, err := unix.Write(p.wakefd, wakeBytes)
	return err
}

// Release closes the epoll and eventfd descriptors. Callers must have
// joined every waiter first.
func (p *Poller) Release() {
	_ = unix.Close(p.epfd)
	_ = unix.Close(p.wakefd)
}

// packEvent packs the 64-bit payload into the epoll user data halves.
func packEvent(events uint32, payload uint64) unix.EpollEvent {
	return unix.EpollEvent{
		Events: events,
		Fd:     int32(uint32(payload)),
		Pad:    int32(uint32(payload >> 32)),
	}
}

// unpackPayload reassembles the 64-bit payload.
func unpackPayload(ev unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}

// maskToEpoll translates interest bits. Hangup and error conditions are
// always reported by the kernel and need no interest bits.
func maskToEpoll(mask api.EventMask) uint32 {
	var ev uint32
	if mask.Has(api.EventReadable) {
		ev |= unix.EPOLLIN
	}
	if mask.Has(api.EventWritable) {
		ev |= unix.EPOLLOUT
	}
	if mask.Has(api.EventUrgent) {
		ev |= unix.EPOLLPRI
	}
	if mask.Has(api.EventPeerClosed) {
		ev |= unix.EPOLLRDHUP
	}
	return ev
}

// epollToMask translates delivered epoll bits to the api mask.
func epollToMask(events uint32) api.EventMask {
	var mask api.EventMask
	if events&unix.EPOLLIN != 0 {
		mask |= api.EventReadable
	}
	if events&unix.EPOLLOUT != 0 {
		mask |= api.EventWritable
	}
	if events&unix.EPOLLPRI != 0 {
		mask |= api.EventUrgent
	}
	if events&unix.EPOLLRDHUP != 0 {
		mask |= api.EventPeerClosed
	}
	if events&unix.EPOLLHUP != 0 {
		mask |= api.EventHangup
	}
	if events&unix.EPOLLERR != 0 {
		mask |= api.EventError
	}
	return mask
}
