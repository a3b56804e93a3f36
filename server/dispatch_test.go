//go:build linux

// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// dispatch_test.go — decision table for the readiness mask reduction.
package server

import (
	"testing"

	"github.com/momentics/hioload-tcp/api"
)

func TestClassify(t *testing.T) {
	const (
		rd  = api.EventReadable
		wr  = api.EventWritable
		urg = api.EventUrgent
		rdh = api.EventPeerClosed
		hup = api.EventHangup
		err = api.EventError
	)

	cases := []struct {
		name string
		mask api.EventMask
		want verdict
	}{
		{"hangup alone", hup, verdict{drain: drainRecycle}},
		{"peer closed alone", rdh, verdict{drain: drainRecycle}},
		{"hangup ignores writable", hup | wr, verdict{drain: drainRecycle}},
		{"peer closed ignores writable", rdh | wr, verdict{drain: drainRecycle}},

		{"readable", rd, verdict{drain: drainInput}},
		{"readable with hangup drains", rd | hup, verdict{drain: drainInput}},
		{"readable with peer closed drains", rd | rdh, verdict{drain: drainInput}},
		{"readable hangup writable drops write", rd | hup | wr, verdict{drain: drainInput}},

		{"urgent", urg, verdict{drain: drainUrgent}},
		{"urgent with hangup drains", urg | hup, verdict{drain: drainUrgent}},
		{"urgent beats readable", rd | urg, verdict{drain: drainUrgent}},
		{"urgent beats readable with hangup", rd | urg | rdh, verdict{drain: drainUrgent}},

		{"writable only", wr, verdict{writeReady: true}},
		{"readable then writable", rd | wr, verdict{drain: drainInput, writeReady: true}},
		{"urgent then writable", urg | wr, verdict{drain: drainUrgent, writeReady: true}},
		{"readable urgent writable", rd | urg | wr, verdict{drain: drainUrgent, writeReady: true}},

		{"error alone", err, verdict{drain: drainRecycle}},
		{"error with writable", err | wr, verdict{drain: drainRecycle}},
		{"error with readable drains", err | rd, verdict{drain: drainInput}},

		{"empty mask", 0, verdict{}},
	}

	for _, tc := range cases {
		if got := classify(tc.mask); got != tc.want {
			t.Errorf("%s: classify(%v) = %+v, want %+v", tc.name, tc.mask, got, tc.want)
		}
	}
}
