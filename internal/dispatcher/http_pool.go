package dispatcher

import (
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPPool hands out fasthttp clients round-robin so one slow connection pool
// does not stall every moderation call.
type HTTPPool struct {
	clients []*fasthttp.Client
	next    atomic.Uint32
}

func NewHTTPPool(size int, timeout time.Duration) *HTTPPool {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(128),
	}

	clients := make([]*fasthttp.Client, size)
	for i := range clients {
		clients[i] = &fasthttp.Client{
			MaxConnsPerHost:     512,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxConnWaitTimeout:  timeout / 2,
			MaxResponseBodySize: 4 * 1024 * 1024,

			// Retries are owned by the dispatcher.
			MaxIdemponentCallAttempts: 1,

			DialDualStack:            true,
			TLSConfig:                tlsConfig,
			NoDefaultUserAgentHeader: true,
		}
	}

	return &HTTPPool{clients: clients}
}

// WithDial replaces every pooled client's dialer. Used to point the pool at an
// in-memory listener.
func (hp *HTTPPool) WithDial(dial fasthttp.DialFunc) *HTTPPool {
	for _, c := range hp.clients {
		c.Dial = dial
	}
	return hp
}

func (hp *HTTPPool) GetClient() *fasthttp.Client {
	i := hp.next.Add(1) - 1
	return hp.clients[int(i)%len(hp.clients)]
}

func (hp *HTTPPool) Size() int {
	return len(hp.clients)
}
