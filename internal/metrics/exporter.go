package metrics

import (
	"context"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Exporter serves /metrics and /healthz over fasthttp.
type Exporter struct {
	server  *fasthttp.Server
	healthy func() bool
	logger  *zap.Logger
}

func NewExporter(healthy func() bool, logger *zap.Logger) *Exporter {
	e := &Exporter{healthy: healthy, logger: logger.Named("metrics")}
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())

	e.server = &fasthttp.Server{
		Name:         "modguard",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				metricsHandler(ctx)
			case "/healthz":
				e.health(ctx)
			default:
				ctx.Error("not found", fasthttp.StatusNotFound)
			}
		},
	}
	return e
}

func (e *Exporter) health(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain; charset=utf-8")
	if e.healthy != nil && !e.healthy() {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetBodyString("unhealthy\n")
		return
	}
	ctx.SetBodyString("ok\n")
}

// ListenAndServe binds addr and serves until ctx ends.
func (e *Exporter) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (e *Exporter) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- e.server.Serve(ln) }()
	e.logger.Info("Metrics exporter listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return e.server.Shutdown()
	}
}
