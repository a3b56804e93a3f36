//go:build linux

// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// server_test.go — live-socket integration tests for ClientPool and
// ListenerPool: echo traffic, capacity enforcement, slot recycling, urgent
// data, and shutdown behavior.
package server

import (
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/transport"
)

// echoHandler writes every input chunk straight back.
type echoHandler struct {
	api.NopHandler
	ep transport.Endpoint
}

func (h echoHandler) OnInput(sfd int, data []byte) {
	_, _ = h.ep.Write(sfd, data)
}

// recordingHandler captures callback order across all descriptors.
type recordingHandler struct {
	api.NopHandler
	mu     sync.Mutex
	inputs [][]byte
	oob    []byte
	order  []string
}

func (h *recordingHandler) OnInput(sfd int, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	h.inputs = append(h.inputs, cp)
	h.order = append(h.order, "input")
}

func (h *recordingHandler) OnOOB(sfd int, b byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.oob = append(h.oob, b)
	h.order = append(h.order, "oob")
}

// startPool binds an ephemeral listener and runs the pool in the
// background. Returns the pool and the bound port.
func startPool(t *testing.T, nworkers, capacity int, h api.ConnHandler) (*ListenerPool, int) {
	t.Helper()
	var ep transport.Endpoint

	s, err := NewListenerPool(nworkers, capacity, h)
	if err != nil {
		t.Fatalf("NewListenerPool: %v", err)
	}
	lfd, err := ep.TCPServer(0, 16)
	if err != nil {
		t.Fatalf("TCPServer: %v", err)
	}
	if err := ep.Unblock(lfd); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	port, err := transport.ListenerPort(lfd)
	if err != nil {
		t.Fatalf("ListenerPort: %v", err)
	}
	if err := s.Add(lfd); err != nil {
		t.Fatalf("Add: %v", err)
	}

	go s.Run()
	t.Cleanup(func() {
		s.Stop()
		s.Release()
	})
	return s, port
}

func dial(t *testing.T, port int) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func echoOnce(t *testing.T, conn net.Conn, payload string) {
	t.Helper()
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != payload {
		t.Fatalf("echo = %q, want %q", buf, payload)
	}
}

func TestEchoSingleClient(t *testing.T) {
	s, port := startPool(t, 1, 4, echoHandler{})

	conn := dial(t, port)
	echoOnce(t, conn, "hello")

	if got := s.Clients().Size(); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}
	conn.Close()
	waitFor(t, 100*time.Millisecond, func() bool { return s.Clients().Size() == 0 },
		"slot not recycled within 100ms of close")

	// size + free slots stays at capacity at quiescence.
	if got := s.Clients().Size() + s.Clients().FreeSlots(); got != s.Clients().Capacity() {
		t.Errorf("size+free = %d, want %d", got, s.Clients().Capacity())
	}
}

func TestCapacityCapAndRecycle(t *testing.T) {
	s, port := startPool(t, 2, 2, echoHandler{})

	c1 := dial(t, port)
	defer c1.Close()
	echoOnce(t, c1, "one")
	c2 := dial(t, port)
	defer c2.Close()
	echoOnce(t, c2, "two")

	// Third connection is accepted and immediately closed by the server.
	c3 := dial(t, port)
	defer c3.Close()
	c3.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c3.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("third client read = %v, want EOF", err)
	}

	// Releasing one slot lets a fresh connection in.
	c1.Close()
	waitFor(t, time.Second, func() bool { return s.Clients().Size() == 1 },
		"slot not recycled after close")
	c4 := dial(t, port)
	defer c4.Close()
	echoOnce(t, c4, "four")
}

func TestAbruptCloseAfterData(t *testing.T) {
	h := &recordingHandler{}
	s, port := startPool(t, 1, 4, h)

	conn := dial(t, port)
	if _, err := conn.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	// Size is 0 before the accept as well, so first wait for the input that
	// proves the slot was claimed.
	waitFor(t, time.Second, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.inputs) > 0
	}, "input not delivered before abrupt close")
	waitFor(t, time.Second, func() bool { return s.Clients().Size() == 0 },
		"slot not recycled after abrupt close")

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inputs) != 1 || string(h.inputs[0]) != "abc" {
		t.Fatalf("inputs = %q, want one %q", h.inputs, "abc")
	}
}

func TestOOBDelivery(t *testing.T) {
	h := &recordingHandler{}
	_, port := startPool(t, 1, 4, h)

	// net.Conn cannot send urgent data; use a raw socket.
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	defer unix.Close(fd)
	sa := &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}
	if err := unix.Connect(fd, sa); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := unix.Sendmsg(fd, []byte{0x7F}, nil, nil, unix.MSG_OOB); err != nil {
		t.Fatalf("send oob: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := unix.Sendmsg(fd, []byte("ok"), nil, nil, 0); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.oob) == 1 && len(h.inputs) >= 1
	}, "oob and input not delivered")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.oob[0] != 0x7F {
		t.Errorf("oob byte = %#x, want 0x7F", h.oob[0])
	}
	if h.order[0] != "oob" {
		t.Errorf("callback order = %v, want oob first", h.order)
	}
	if got := string(h.inputs[len(h.inputs)-1]); got != "ok" {
		t.Errorf("trailing input = %q, want %q", got, "ok")
	}
}

func TestAddClientCapacityCondition(t *testing.T) {
	p, err := NewClientPool(1, 1, nil)
	if err != nil {
		t.Fatalf("NewClientPool: %v", err)
	}
	p.Run()
	defer func() {
		p.Stop()
		p.Release()
	}()

	fds := socketPair(t)
	if !p.AddClient(fds[0]) {
		t.Fatal("first AddClient failed")
	}
	if p.Size() != 1 {
		t.Fatalf("size = %d, want 1", p.Size())
	}

	fds2 := socketPair(t)
	if p.AddClient(fds2[0]) {
		t.Fatal("AddClient succeeded at capacity")
	}
	unix.Close(fds2[0])
}

func TestRunStopIdempotent(t *testing.T) {
	p, err := NewClientPool(2, 4, nil)
	if err != nil {
		t.Fatalf("NewClientPool: %v", err)
	}
	p.Run()
	p.Run() // no-op
	p.Stop()
	p.Stop() // no-op
	p.Release()
}

func TestShutdownMidTraffic(t *testing.T) {
	const clients = 100
	s, port := startPool(t, 4, clients, echoHandler{})

	var wg sync.WaitGroup
	stopCh := make(chan struct{})
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			if err != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 64)
			for {
				select {
				case <-stopCh:
					return
				default:
				}
				if _, err := conn.Write(buf); err != nil {
					return
				}
				conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
				if _, err := conn.Read(buf); err != nil {
					return
				}
			}
		}()
	}

	waitFor(t, 2*time.Second, func() bool { return s.Clients().Size() > clients/2 },
		"clients did not connect")

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Stop took %v, want under 500ms", elapsed)
	}
	if got := s.Clients().Size(); got != 0 {
		t.Errorf("size after Stop = %d, want 0", got)
	}

	close(stopCh)
	wg.Wait()
}

func socketPair(t *testing.T) [2]int {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[1])
	})
	return fds
}
