// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values shared across the hioload-tcp library.

package api

import "errors"

var (
	// ErrResourceExhausted reports a failed kernel allocation: anonymous
	// file, mapping, or poller instance.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrPollerClosed is returned by Poller.Wait after Close; workers treat
	// it as the shutdown signal.
	ErrPollerClosed = errors.New("poller closed")

	// ErrWouldBlock marks a drained non-blocking operation.
	ErrWouldBlock = errors.New("operation would block")
)
