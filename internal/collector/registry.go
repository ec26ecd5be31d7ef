package collector

import (
	"context"
	"fmt"
	"sync"
)

// Registry manages the lifecycle of registered collectors. It is
// thread-safe: Register, StartAll, WaitForSync, and StopAll can be
// called from different goroutines.
type Registry struct {
	collectors []Collector
	mu         sync.Mutex
	started    bool
}

// NewRegistry creates a new, empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a collector to the registry.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// StartAll starts the registered collectors in registration order and
// returns the first start failure, naming the failed collector.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	collectors := r.snapshotLocked()
	r.started = true
	r.mu.Unlock()

	for _, c := range collectors {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("collector %s failed to start: %w", c.Name(), err)
		}
	}
	return nil
}

// WaitForSync waits for every registered collector to finish its first
// poll. Uses the context deadline/timeout.
func (r *Registry) WaitForSync(ctx context.Context) error {
	r.mu.Lock()
	collectors := r.snapshotLocked()
	r.mu.Unlock()

	for _, c := range collectors {
		if err := c.WaitForSync(ctx); err != nil {
			return fmt.Errorf("collector %s sync failed: %w", c.Name(), err)
		}
	}
	return nil
}

// StopAll stops all registered collectors. Safe to call multiple times.
func (r *Registry) StopAll() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	collectors := r.snapshotLocked()
	r.started = false
	r.mu.Unlock()

	for _, c := range collectors {
		c.Stop()
	}
}

// Collectors returns the registered collectors.
func (r *Registry) Collectors() []Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Collector {
	out := make([]Collector, len(r.collectors))
	copy(out, r.collectors)
	return out
}
