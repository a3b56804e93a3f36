// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for pool monitoring. All fields are updated with atomics
// on hot paths; Snapshot is for debug endpoints and tests.

package control

import "sync/atomic"

// Metrics aggregates pool activity counters.
type Metrics struct {
	Accepted   atomic.Int64 // connections handed to the client pool
	Rejected   atomic.Int64 // accepted sockets closed for capacity or errors
	Recycled   atomic.Int64 // slots returned to the free list
	Events     atomic.Int64 // readiness events dispatched
	InputBytes atomic.Int64 // bytes delivered to OnInput
	OOBBytes   atomic.Int64 // urgent bytes delivered to OnOOB
	Active     atomic.Int64 // currently claimed slots
}

// NewMetrics creates a zeroed registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"accepted":    m.Accepted.Load(),
		"rejected":    m.Rejected.Load(),
		"recycled":    m.Recycled.Load(),
		"events":      m.Events.Load(),
		"input_bytes": m.InputBytes.Load(),
		"oob_bytes":   m.OOBBytes.Load(),
		"active":      m.Active.Load(),
	}
}
