package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Watchdog struct {
	mu            sync.RWMutex
	components    map[string]*ComponentHealth
	checkInterval time.Duration
	logger        *zap.Logger
}

type ComponentHealth struct {
	Name          string
	LastHeartbeat atomic.Int64
	IsHealthy     atomic.Bool
	Threshold     time.Duration
}

func NewWatchdog(checkInterval time.Duration, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		components:    make(map[string]*ComponentHealth),
		checkInterval: checkInterval,
		logger:        logger.Named("watchdog"),
	}
}

// RegisterComponent starts tracking name. A component is unhealthy once it has
// gone longer than threshold without a heartbeat.
func (w *Watchdog) RegisterComponent(name string, threshold time.Duration) {
	comp := &ComponentHealth{Name: name, Threshold: threshold}
	comp.IsHealthy.Store(true)
	comp.LastHeartbeat.Store(time.Now().UnixNano())

	w.mu.Lock()
	w.components[name] = comp
	w.mu.Unlock()
}

func (w *Watchdog) Heartbeat(name string) {
	w.mu.RLock()
	comp, exists := w.components[name]
	w.mu.RUnlock()
	if !exists {
		return
	}
	comp.LastHeartbeat.Store(time.Now().UnixNano())
	if !comp.IsHealthy.Swap(true) {
		w.logger.Info("Component recovered", zap.String("component", name))
	}
}

// Beat sends heartbeats for name every interval until ctx ends.
func (w *Watchdog) Beat(ctx context.Context, name string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.Heartbeat(name)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs check every interval until ctx ends and sends a heartbeat for name
// each time it passes.
func (w *Watchdog) Poll(ctx context.Context, name string, interval time.Duration, check func(context.Context) bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if check(ctx) {
			w.Heartbeat(name)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Run checks every component each interval until ctx ends.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			w.checkAllComponents(now)
		}
	}
}

func (w *Watchdog) checkAllComponents(now time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for name, comp := range w.components {
		elapsed := time.Duration(now.UnixNano() - comp.LastHeartbeat.Load())
		if elapsed > comp.Threshold && comp.IsHealthy.Swap(false) {
			w.logger.Error("Component unhealthy",
				zap.String("component", name),
				zap.Duration("since_heartbeat", elapsed))
		}
	}
}

func (w *Watchdog) IsHealthy(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if comp, exists := w.components[name]; exists {
		return comp.IsHealthy.Load()
	}
	return false
}

// Healthy reports whether every registered component is healthy.
func (w *Watchdog) Healthy() bool {
	for _, ok := range w.GetStatus() {
		if !ok {
			return false
		}
	}
	return true
}

func (w *Watchdog) GetStatus() map[string]bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	status := make(map[string]bool, len(w.components))
	for name, comp := range w.components {
		status[name] = comp.IsHealthy.Load()
	}
	return status
}
