package metrics

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap/zaptest"
)

func TestExporterEndpoints(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	healthy.Store(true)

	ln := fasthttputil.NewInmemoryListener()
	e := NewExporter(healthy.Load, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, ln) }()

	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	get := func(path string) (int, string) {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		req.SetRequestURI("http://metrics.test" + path)
		require.NoError(t, client.Do(req, resp))
		return resp.StatusCode(), string(resp.Body())
	}

	EventsReceived.WithLabelValues("channel_delete").Inc()
	status, body := get("/metrics")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "modguard_events_received")

	status, _ = get("/healthz")
	assert.Equal(t, fasthttp.StatusOK, status)

	healthy.Store(false)
	status, _ = get("/healthz")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)

	status, _ = get("/nope")
	assert.Equal(t, fasthttp.StatusNotFound, status)

	cancel()
	require.NoError(t, <-done)
}
