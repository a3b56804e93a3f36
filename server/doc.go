// File: server/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server contains the client slot pool and the listener pool.
//
// ClientPool owns a pre-allocated slab of client slots, a double-mapped
// free-list ring of slot indices, and the worker goroutines that wait on the
// shared readiness poller. ListenerPool owns the listening sockets and feeds
// accepted descriptors into a ClientPool without blocking its accept loop.
package server
