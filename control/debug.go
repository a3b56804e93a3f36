// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Debug HTTP endpoint exposing liveness and the metrics snapshot. The
// listener is served off the server's own executor so the hosting application
// never spawns goroutines for it.

package control

import (
	"net"

	"github.com/rs/zerolog"
	"github.com/sugawarayuuta/sonnet"
	"github.com/valyala/fasthttp"

	"github.com/momentics/hioload-tcp/internal/concurrency"
)

// DebugServer serves /healthz and /metricsz.
type DebugServer struct {
	metrics *Metrics
	log     zerolog.Logger
	srv     *fasthttp.Server
	ln      net.Listener
	exec    *concurrency.Executor
}

// NewDebugServer wires a metrics registry into an HTTP handler.
func NewDebugServer(m *Metrics, log zerolog.Logger) *DebugServer {
	d := &DebugServer{
		metrics: m,
		log:     log,
		exec:    concurrency.NewExecutor(),
	}
	d.srv = &fasthttp.Server{
		Handler:          d.handle,
		DisableKeepalive: true,
	}
	return d
}

// Start binds addr and serves in the background. Use Addr for the bound
// address when addr carries port 0.
func (d *DebugServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	d.ln = ln
	return d.exec.Submit(func() {
		if err := d.srv.Serve(ln); err != nil {
			d.log.Error().Err(err).Msg("debug server exited")
		}
	})
}

// Addr returns the bound listener address, or "" before Start.
func (d *DebugServer) Addr() string {
	if d.ln == nil {
		return ""
	}
	return d.ln.Addr().String()
}

// Stop shuts the server down and joins the executor.
func (d *DebugServer) Stop() {
	_ = d.srv.Shutdown()
	d.exec.Close()
}

func (d *DebugServer) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case "/metricsz":
		body, err := sonnet.Marshal(d.metrics.Snapshot())
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}
