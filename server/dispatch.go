//go:build linux

// File: server/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The readiness mask to handler-call reduction. Kept as a pure function so
// the decision table is testable without sockets.

package server

import "github.com/momentics/hioload-tcp/api"

// drainKind selects the drain path a dispatched event runs.
type drainKind uint8

const (
	drainNone drainKind = iota
	drainInput
	drainUrgent
	drainRecycle
)

// verdict is the canonical action for one composite readiness mask.
type verdict struct {
	drain      drainKind
	writeReady bool
}

// classify reduces a composite mask to its canonical action.
//
// Urgent beats readable; the urgent path drains ordinary data after the mark
// as well. Hangup without pending input recycles immediately. Hangup
// combined with readable or urgent does not short-circuit: the drain itself
// observes the 0-byte read of the orderly close. Any hangup bit suppresses
// the write callback; otherwise write readiness is always delivered last so
// a handler can reply inside the same event.
func classify(mask api.EventMask) verdict {
	hup := mask&(api.EventPeerClosed|api.EventHangup) != 0

	switch {
	case mask.Has(api.EventUrgent):
		return verdict{drain: drainUrgent, writeReady: mask.Has(api.EventWritable) && !hup}
	case mask.Has(api.EventReadable):
		return verdict{drain: drainInput, writeReady: mask.Has(api.EventWritable) && !hup}
	case hup:
		return verdict{drain: drainRecycle}
	case mask.Has(api.EventError):
		return verdict{drain: drainRecycle}
	case mask.Has(api.EventWritable):
		return verdict{writeReady: true}
	default:
		return verdict{}
	}
}
