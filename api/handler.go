// File: api/handler.go
// Package api defines the connection handler capability set.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ConnHandler is the capability a user plugs into a client pool. Callbacks
// run on pool worker goroutines; invocations for the same descriptor are
// serialized, invocations for distinct descriptors may run concurrently.
//
// The data slice passed to OnInput is borrowed for the duration of the call.
// Handlers must not close the descriptor directly and should avoid unbounded
// blocking work.
type ConnHandler interface {
	// OnInput delivers bytes freshly read from sfd.
	OnInput(sfd int, data []byte)

	// OnOOB delivers a single out-of-band byte.
	OnOOB(sfd int, b byte)

	// OnWriteReady signals that sfd accepts writes again.
	OnWriteReady(sfd int)
}

// NopHandler is a ConnHandler with no-op defaults. Embed it to override only
// the callbacks of interest.
type NopHandler struct{}

func (NopHandler) OnInput(int, []byte) {}
func (NopHandler) OnOOB(int, byte)     {}
func (NopHandler) OnWriteReady(int)    {}

var _ ConnHandler = NopHandler{}
