// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor wraps the OS readiness primitive behind api.Poller.
//
// The Linux implementation is an edge-triggered epoll instance shared by all
// pool workers. Each registration carries an opaque 64-bit payload packed
// into the epoll user data; an eventfd registered with a sentinel payload
// wakes every waiter when the poller closes.
package reactor
