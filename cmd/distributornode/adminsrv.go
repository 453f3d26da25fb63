package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/docstore/distributor/childops"
)

func defaultRegisterer() prometheus.Registerer { return prometheus.DefaultRegisterer }

// adminServer is the small HTTP surface SPEC_FULL.md §3 carves out for
// operability: Prometheus scraping and a human-readable snapshot of the
// node's static configuration. It is deliberately thin — the coordinator
// itself is driven entirely through transport.Sender, never through HTTP.
type adminServer struct {
	addr   string
	mgr    *childops.Manager
	server *fasthttp.Server
}

func newAdminServer(addr string, mgr *childops.Manager) *adminServer {
	a := &adminServer{addr: addr, mgr: mgr}
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	a.server = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				metricsHandler(ctx)
			case "/debug/ops":
				a.handleDebugOps(ctx)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
		Name: "distributornode-admin",
	}
	return a
}

func (a *adminServer) ListenAndServe() error {
	return a.server.ListenAndServe(a.addr)
}

func (a *adminServer) Shutdown() {
	_ = a.server.Shutdown()
}

// handleDebugOps reports the node's static configuration. It does not
// enumerate live operations — an Operation exists only as long as the
// client call driving it is on the stack, so there is nothing durable to
// list here beyond the collaborators every operation is constructed with.
func (a *adminServer) handleDebugOps(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain; charset=utf-8")
	fmt.Fprintf(ctx, "num_buckets=%d\n", a.mgr.NumBuckets)
}
