//go:build linux

// File: transport/endpoint_linux.go
// Package transport implements the api.Endpoint socket façade for Linux.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/api"
)

// Ensure compile-time interface compliance.
var _ api.Endpoint = Endpoint{}

// Endpoint is the stateless Linux socket layer. All methods are thin wrappers
// over raw syscalls; WOULD_BLOCK conditions surface as api.ErrWouldBlock.
type Endpoint struct{}

// TCPServer binds a listener on all interfaces and starts listening.
func (Endpoint) TCPServer(port, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("transport: socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: bind port %d: %w", port, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: listen: %w", err)
	}
	return fd, nil
}

// Accept accepts one pending connection on a non-blocking listener.
func (Endpoint) Accept(lfd int) (int, error) {
	fd, _, err := unix.Accept4(lfd, unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, api.ErrWouldBlock
		}
		return -1, err
	}
	return fd, nil
}

// Read reads into buf. n == 0 with nil error is the orderly peer close.
func (Endpoint) Read(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, api.ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// ReadOOB reads the single byte at the urgent mark.
func (Endpoint) ReadOOB(fd int) (byte, error) {
	var b [1]byte
	for {
		n, _, err := unix.Recvfrom(fd, b[:], unix.MSG_OOB)
		switch err {
		case nil:
			if n == 0 {
				return 0, fmt.Errorf("transport: empty oob read")
			}
			return b[0], nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, api.ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// Write writes buf fully, retrying short writes. A drained socket returns
// the byte count written so far plus api.ErrWouldBlock.
func (Endpoint) Write(fd int, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := unix.Write(fd, buf[written:])
		if n > 0 {
			written += n
		}
		switch err {
		case nil:
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return written, api.ErrWouldBlock
		default:
			return written, err
		}
	}
	return written, nil
}

// AtMark reports whether fd sits at the urgent-data mark.
func (Endpoint) AtMark(fd int) (bool, error) {
	v, err := unix.IoctlGetInt(fd, unix.SIOCATMARK)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Unblock switches fd to non-blocking mode.
func (Endpoint) Unblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// Close closes fd.
func (Endpoint) Close(fd int) error {
	return unix.Close(fd)
}

// ListenerPort reports the port a listener descriptor is bound to. Useful
// when binding port 0 for an ephemeral port.
func ListenerPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	}
	return 0, fmt.Errorf("transport: fd %d is not a TCP socket", fd)
}
