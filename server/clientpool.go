//go:build linux

// File: server/clientpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ClientPool multiplexes client descriptors across a fixed set of worker
// goroutines. All per-connection state is pre-allocated at construction;
// slots cycle through the double-mapped free-list ring, so accepting and
// serving a connection allocates no per-connection state.

package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/pool"
	"github.com/momentics/hioload-tcp/reactor"
)

// ClientPool owns the slot slab, the free-list ring, the shared poller and
// the worker goroutines dispatching readiness events to the user handler.
type ClientPool struct {
	// lock serializes Run and Stop only; hot paths never take it.
	lock    sync.Mutex
	running bool
	wg      sync.WaitGroup

	nworkers int
	cap      int
	slots    []clientSlot
	free     *pool.DoubleMapRing[uint32]
	size     atomic.Int64

	poller   *reactor.Poller
	ep       api.Endpoint
	handler  api.ConnHandler
	interest api.EventMask

	log     zerolog.Logger
	metrics *control.Metrics
	maxEv   int
}

// NewClientPool allocates the slab and free-list ring for capacity clients
// and a poller shared by nworkers workers. The handler may be nil for a pool
// that only consumes bytes.
func NewClientPool(nworkers, capacity int, handler api.ConnHandler, opts ...Option) (*ClientPool, error) {
	if nworkers <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("server: bad pool geometry %d workers, %d clients: %w",
			nworkers, capacity, api.ErrResourceExhausted)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if handler == nil {
		handler = api.NopHandler{}
	}

	free, err := pool.NewDoubleMapRing[uint32](capacity)
	if err != nil {
		return nil, err
	}
	poller, err := reactor.New()
	if err != nil {
		free.Destroy()
		return nil, err
	}

	p := &ClientPool{
		nworkers: nworkers,
		cap:      capacity,
		slots:    make([]clientSlot, capacity),
		free:     free,
		poller:   poller,
		ep:       o.endpoint,
		handler:  handler,
		interest: api.EventReadable | api.EventUrgent | api.EventPeerClosed,
		log:      o.logger,
		metrics:  o.metrics,
		maxEv:    o.maxEvents,
	}
	if o.writeNotify {
		p.interest |= api.EventWritable
	}
	for i := 0; i < capacity; i++ {
		free.Enqueue(uint32(i))
	}
	return p, nil
}

// Capacity returns the maximum concurrent client count.
func (p *ClientPool) Capacity() int { return p.cap }

// Size returns the currently claimed slot count.
func (p *ClientPool) Size() int { return int(p.size.Load()) }

// FreeSlots returns the slots available for new clients.
func (p *ClientPool) FreeSlots() int { return p.cap - int(p.size.Load()) }

// AddClient claims a slot for fd and registers it with the poller. Returns
// false when the pool is at capacity or registration fails; the caller
// closes the descriptor in that case. fd must already be non-blocking.
func (p *ClientPool) AddClient(fd int) bool {
	if int(p.size.Load()) == p.cap {
		return false
	}
	idx := p.use(fd)
	if err := p.poller.AddOneShot(fd, uint64(idx), p.interest); err != nil {
		p.log.Error().Err(err).Int("fd", fd).Msg("client registration failed")
		// Never registered: hand the slot back and leave the descriptor
		// to the caller.
		p.release(idx)
		return false
	}
	return true
}

// Run spawns the worker goroutines. Idempotent: calling Run on a running
// pool is a no-op.
func (p *ClientPool) Run() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.running {
		return
	}
	p.running = true
	for i := 0; i < p.nworkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Debug().Int("workers", p.nworkers).Int("capacity", p.cap).Msg("client pool running")
}

// Stop closes the poller, joins every worker, then closes all still-open
// client sockets. Idempotent, and safe to call concurrently with Run.
// In-flight handler invocations complete before Stop returns. A stopped
// pool is terminal: claimed slot indices are not returned to the free ring,
// so Run after Stop only spawns workers that exit immediately.
func (p *ClientPool) Stop() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.running {
		return
	}
	_ = p.poller.Close()
	p.wg.Wait()

	for i := range p.slots {
		if sfd := p.slots[i].sfd; sfd != 0 {
			_ = p.ep.Close(sfd)
			p.slots[i].sfd = 0
		}
	}
	p.size.Store(0)
	p.metrics.Active.Store(0)
	p.running = false
	p.log.Debug().Msg("client pool stopped")
}

// Release frees the poller descriptors and the free-list mapping. The pool
// must be stopped first; Release on a running pool races its workers.
func (p *ClientPool) Release() {
	p.free.Destroy()
	p.poller.Release()
}

// use claims a free slot for fd. Callers have already checked capacity.
func (p *ClientPool) use(fd int) uint32 {
	p.size.Add(1)
	p.metrics.Active.Store(p.size.Load())
	idx := p.free.Dequeue()
	p.slots[idx].sfd = fd
	return idx
}

// unuse recycles a registered slot: deregister first so no future event can
// reference it, then close, then return the index to the ring.
func (p *ClientPool) unuse(idx uint32) {
	slot := &p.slots[idx]
	_ = p.poller.Remove(slot.sfd)
	_ = p.ep.Close(slot.sfd)
	p.release(idx)
	p.metrics.Recycled.Add(1)
}

// release clears a slot and returns its index to the free ring without
// touching the descriptor.
func (p *ClientPool) release(idx uint32) {
	p.slots[idx].sfd = 0
	p.free.Enqueue(idx)
	p.size.Add(-1)
	p.metrics.Active.Store(p.size.Load())
}

// worker blocks on the shared poller and dispatches event batches until the
// poller closes.
func (p *ClientPool) worker(id int) {
	defer p.wg.Done()

	evs := make([]api.Event, p.maxEv)
	for {
		n, err := p.poller.Wait(evs)
		if err != nil {
			if !errors.Is(err, api.ErrPollerClosed) {
				p.log.Error().Err(err).Int("worker", id).Msg("poller wait failed")
			}
			return
		}
		for i := 0; i < n; i++ {
			p.dispatch(evs[i])
		}
	}
}

// dispatch runs the state machine for one event. The slot is re-armed only
// after its drain and write callback return, which keeps at most one worker
// on any slot.
func (p *ClientPool) dispatch(ev api.Event) {
	p.metrics.Events.Add(1)

	idx := uint32(ev.Payload)
	slot := &p.slots[idx]
	v := classify(ev.Mask)

	live := true
	switch v.drain {
	case drainInput:
		live = p.drainInput(idx, slot)
	case drainUrgent:
		live = p.drainUrgent(idx, slot)
	case drainRecycle:
		p.unuse(idx)
		live = false
	case drainNone:
		// write-only event
	}
	if !live {
		return
	}
	if v.writeReady {
		p.handler.OnWriteReady(slot.sfd)
	}
	if err := p.poller.Rearm(slot.sfd, uint64(idx), p.interest); err != nil {
		p.unuse(idx)
	}
}

// drainInput loops reads until the descriptor is drained. Returns false if
// the slot was recycled.
func (p *ClientPool) drainInput(idx uint32, slot *clientSlot) bool {
	for {
		n, err := p.ep.Read(slot.sfd, slot.buff[:MaxReadSize])
		switch {
		case err == nil && n > 0:
			p.metrics.InputBytes.Add(int64(n))
			p.handler.OnInput(slot.sfd, slot.buff[:n])
		case err == nil:
			// orderly peer close
			p.unuse(idx)
			return false
		case errors.Is(err, api.ErrWouldBlock):
			return true
		default:
			p.unuse(idx)
			return false
		}
	}
}

// drainUrgent consumes the out-of-band byte at the mark, then drains
// ordinary data exactly like drainInput, re-checking the mark between
// reads. Returns false if the slot was recycled.
func (p *ClientPool) drainUrgent(idx uint32, slot *clientSlot) bool {
	for {
		atMark, err := p.ep.AtMark(slot.sfd)
		if err != nil {
			p.unuse(idx)
			return false
		}
		if atMark {
			b, err := p.ep.ReadOOB(slot.sfd)
			if err != nil {
				p.unuse(idx)
				return false
			}
			p.metrics.OOBBytes.Add(1)
			p.handler.OnOOB(slot.sfd, b)
		}

		n, err := p.ep.Read(slot.sfd, slot.buff[:MaxReadSize])
		switch {
		case err == nil && n > 0:
			p.metrics.InputBytes.Add(int64(n))
			p.handler.OnInput(slot.sfd, slot.buff[:n])
		case err == nil:
			p.unuse(idx)
			return false
		case errors.Is(err, api.ErrWouldBlock):
			return true
		default:
			p.unuse(idx)
			return false
		}
	}
}
