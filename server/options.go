//go:build linux

// File: server/options.go
// Package server defines functional options shared by both pools.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/transport"
)

// Option customizes pool initialization.
type Option func(*options)

type options struct {
	endpoint    api.Endpoint
	logger      zerolog.Logger
	metrics     *control.Metrics
	maxEvents   int
	writeNotify bool
}

func defaultOptions() options {
	return options{
		endpoint:  transport.Endpoint{},
		logger:    zerolog.Nop(),
		metrics:   control.NewMetrics(),
		maxEvents: 128,
	}
}

// WithEndpoint replaces the socket layer (used by tests and fakes).
func WithEndpoint(ep api.Endpoint) Option {
	return func(o *options) { o.endpoint = ep }
}

// WithLogger attaches a structured logger. Pools log sparsely: lifecycle
// transitions and per-listener failures, never per-byte traffic.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics attaches a shared metrics registry.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMaxEvents sets the per-worker wait batch size.
func WithMaxEvents(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEvents = n
		}
	}
}

// WithWriteNotify adds write readiness to the client interest set, enabling
// OnWriteReady callbacks.
func WithWriteNotify() Option {
	return func(o *options) { o.writeNotify = true }
}
