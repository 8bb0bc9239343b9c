package dispatcher

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

type RateLimitBucket struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RateLimitMonitor tracks the per-route buckets the API reports in response
// headers, plus a global token bucket shared by every route.
type RateLimitMonitor struct {
	mu      sync.RWMutex
	buckets map[string]*RateLimitBucket
	global  *rate.Limiter
	now     func() time.Time
}

func NewRateLimitMonitor(perSecond float64, burst int) *RateLimitMonitor {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitMonitor{
		buckets: make(map[string]*RateLimitBucket),
		global:  rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// Wait blocks until the global limiter and the route bucket allow a request.
func (rlm *RateLimitMonitor) Wait(ctx context.Context, route string, guildID uint64) error {
	if err := rlm.global.Wait(ctx); err != nil {
		return err
	}
	if rlm.CanExecute(route, guildID) {
		return nil
	}

	bucket := rlm.GetBucket(route, guildID)
	if bucket == nil {
		return nil
	}
	delay := bucket.ResetAt.Sub(rlm.now())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (rlm *RateLimitMonitor) CanExecute(route string, guildID uint64) bool {
	bucket := rlm.GetBucket(route, guildID)
	if bucket == nil {
		return true
	}
	if rlm.now().After(bucket.ResetAt) {
		return true
	}
	return bucket.Remaining > 0
}

func (rlm *RateLimitMonitor) UpdateFromFastHTTPResponse(resp *fasthttp.Response, route string, guildID uint64) {
	remaining := string(resp.Header.Peek("X-RateLimit-Remaining"))
	if remaining == "" {
		return
	}

	bucket := &RateLimitBucket{}
	bucket.Remaining, _ = strconv.Atoi(remaining)
	if limit := string(resp.Header.Peek("X-RateLimit-Limit")); limit != "" {
		bucket.Limit, _ = strconv.Atoi(limit)
	}
	if reset := string(resp.Header.Peek("X-RateLimit-Reset")); reset != "" {
		resetUnix, _ := strconv.ParseFloat(reset, 64)
		bucket.ResetAt = time.UnixMilli(int64(resetUnix * 1000))
	}

	rlm.mu.Lock()
	rlm.buckets[rlm.getKey(route, guildID)] = bucket
	rlm.mu.Unlock()
}

func (rlm *RateLimitMonitor) getKey(route string, guildID uint64) string {
	return route + ":" + strconv.FormatUint(guildID, 10)
}

func (rlm *RateLimitMonitor) GetBucket(route string, guildID uint64) *RateLimitBucket {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()
	return rlm.buckets[rlm.getKey(route, guildID)]
}
