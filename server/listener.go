//go:build linux

// File: server/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ListenerPool accepts connections on one or more listening sockets and
// feeds them to the inner ClientPool. The accept loop never blocks: each
// readiness event drains accept() until WOULD_BLOCK.

package server

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/reactor"
)

// ListenerPool owns the listener descriptors and their own poller. Run
// occupies the calling goroutine; a failing listener is dropped while the
// remaining listeners continue to serve.
type ListenerPool struct {
	lock      sync.Mutex
	running   bool
	runDone   chan struct{}
	listeners map[int]struct{}

	clients *ClientPool
	poller  *reactor.Poller
	ep      api.Endpoint

	log     zerolog.Logger
	metrics *control.Metrics
	maxEv   int
}

// NewListenerPool builds the inner client pool with nworkers workers and
// capacity client slots, plus the listener-side poller.
func NewListenerPool(nworkers, capacity int, handler api.ConnHandler, opts ...Option) (*ListenerPool, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// The inner pool shares this pool's registry unless the caller
	// provided one explicitly.
	inner := append([]Option{WithMetrics(o.metrics)}, opts...)
	clients, err := NewClientPool(nworkers, capacity, handler, inner...)
	if err != nil {
		return nil, err
	}
	poller, err := reactor.New()
	if err != nil {
		clients.Release()
		return nil, err
	}
	return &ListenerPool{
		listeners: make(map[int]struct{}),
		clients:   clients,
		poller:    poller,
		ep:        o.endpoint,
		log:       o.logger,
		metrics:   o.metrics,
		maxEv:     o.maxEvents,
	}, nil
}

// Clients exposes the inner pool.
func (s *ListenerPool) Clients() *ClientPool { return s.clients }

// Bind creates a listening socket on port, makes it non-blocking and
// registers it. The listener descriptor itself is the event payload.
func (s *ListenerPool) Bind(port, backlog int) error {
	lfd, err := s.ep.TCPServer(port, backlog)
	if err != nil {
		return err
	}
	if err := s.ep.Unblock(lfd); err != nil {
		_ = s.ep.Close(lfd)
		return err
	}
	if err := s.Add(lfd); err != nil {
		_ = s.ep.Close(lfd)
		return err
	}
	return nil
}

// Add registers an externally-created listener descriptor. The descriptor
// must be non-blocking.
func (s *ListenerPool) Add(lfd int) error {
	if err := s.poller.Add(lfd, uint64(uint32(lfd)), api.EventReadable); err != nil {
		return err
	}
	s.lock.Lock()
	s.listeners[lfd] = struct{}{}
	s.lock.Unlock()
	return nil
}

// Run starts the inner client pool and serves accept events on the calling
// goroutine until Stop. Run on a running pool returns immediately.
func (s *ListenerPool) Run() {
	s.lock.Lock()
	if s.running {
		s.lock.Unlock()
		return
	}
	s.running = true
	done := make(chan struct{})
	s.runDone = done
	s.lock.Unlock()
	defer close(done)

	s.clients.Run()

	evs := make([]api.Event, s.maxEv)
	for {
		n, err := s.poller.Wait(evs)
		if err != nil {
			if !errors.Is(err, api.ErrPollerClosed) {
				s.log.Error().Err(err).Msg("listener wait failed")
			}
			return
		}
		for i := 0; i < n; i++ {
			s.serve(evs[i])
		}
	}
}

// Stop closes the listener poller, waits for Run to return, closes the
// listener sockets, then stops the inner client pool. Idempotent. Must not
// be called from the Run goroutine or from a handler callback: Stop waits
// for Run to return and joins the client pool workers that run callbacks.
func (s *ListenerPool) Stop() {
	_ = s.poller.Close()

	s.lock.Lock()
	if !s.running {
		s.lock.Unlock()
		return
	}
	s.running = false
	done := s.runDone
	s.lock.Unlock()
	if done != nil {
		<-done
	}

	s.lock.Lock()
	for lfd := range s.listeners {
		_ = s.ep.Close(lfd)
		delete(s.listeners, lfd)
	}
	s.lock.Unlock()

	s.clients.Stop()
}

// Release frees both pollers and the client pool mapping. Stop first.
func (s *ListenerPool) Release() {
	s.poller.Release()
	s.clients.Release()
}

// serve handles one listener readiness event: drop the listener on error
// conditions, otherwise accept until drained.
func (s *ListenerPool) serve(ev api.Event) {
	lfd := int(uint32(ev.Payload))

	if ev.Mask&(api.EventError|api.EventHangup) != 0 {
		s.dropListener(lfd)
		return
	}

	for {
		fd, err := s.ep.Accept(lfd)
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return
			}
			s.log.Error().Err(err).Int("listener", lfd).Msg("accept failed")
			s.dropListener(lfd)
			return
		}
		if err := s.ep.Unblock(fd); err != nil || !s.clients.AddClient(fd) {
			_ = s.ep.Close(fd)
			s.metrics.Rejected.Add(1)
			continue
		}
		s.metrics.Accepted.Add(1)
	}
}

// dropListener removes one failed listener; the rest keep serving.
func (s *ListenerPool) dropListener(lfd int) {
	_ = s.poller.Remove(lfd)
	_ = s.ep.Close(lfd)

	s.lock.Lock()
	delete(s.listeners, lfd)
	s.lock.Unlock()

	s.log.Warn().Int("listener", lfd).Msg("listener dropped")
}
