// File: api/endpoint.go
// Package api defines the socket primitive façade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Endpoint is the thin portability layer over raw TCP sockets. All
// descriptors handed to pools are expected to be non-blocking; Read, Accept
// and ReadOOB report a drained descriptor with ErrWouldBlock.
type Endpoint interface {
	// TCPServer binds and listens on all interfaces, returning the listener
	// descriptor.
	TCPServer(port, backlog int) (int, error)

	// Accept performs a non-blocking accept on a listener descriptor.
	Accept(lfd int) (int, error)

	// Read performs a non-blocking read. n == 0 with a nil error is an
	// orderly peer close.
	Read(fd int, buf []byte) (int, error)

	// ReadOOB reads the single pending out-of-band byte.
	ReadOOB(fd int) (byte, error)

	// Write writes len(buf) bytes, retrying short writes.
	Write(fd int, buf []byte) (int, error)

	// AtMark reports whether fd is at the urgent-data mark (SIOCATMARK).
	AtMark(fd int) (bool, error)

	// Unblock switches fd to non-blocking mode.
	Unblock(fd int) error

	// Close closes fd.
	Close(fd int) error
}
