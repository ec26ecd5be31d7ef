package collector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockCollector implements Collector for testing.
type mockCollector struct {
	mu       sync.Mutex
	name     string
	startErr error
	syncErr  error
	started  bool
	synced   bool
	stopped  bool
	// syncDelay adds artificial latency to WaitForSync.
	syncDelay time.Duration
}

func (m *mockCollector) Name() string { return m.name }

func (m *mockCollector) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockCollector) WaitForSync(ctx context.Context) error {
	if m.syncDelay > 0 {
		select {
		case <-time.After(m.syncDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncErr != nil {
		return m.syncErr
	}
	m.synced = true
	return nil
}

func (m *mockCollector) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockCollector) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *mockCollector) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func TestRegistry_StartAll(t *testing.T) {
	r := NewRegistry()

	c1 := &mockCollector{name: "pod_memory"}
	c2 := &mockCollector{name: "node_capacity"}

	r.Register(c1)
	r.Register(c2)

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c1.isStarted() || !c2.isStarted() {
		t.Error("expected all collectors to be started")
	}
}

func TestRegistry_StartAllFailureNamesCollector(t *testing.T) {
	r := NewRegistry()

	r.Register(&mockCollector{name: "pod_memory", startErr: errors.New("metrics API unreachable")})

	err := r.StartAll(context.Background())
	if err == nil {
		t.Fatal("expected error when a collector fails to start")
	}
	if !strings.Contains(err.Error(), "pod_memory") {
		t.Errorf("expected error to name the failed collector, got %q", err)
	}
}

func TestRegistry_WaitForSync(t *testing.T) {
	r := NewRegistry()

	c := &mockCollector{name: "pod_memory"}
	r.Register(c)

	if err := r.WaitForSync(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.synced {
		t.Error("expected collector to be synced")
	}
}

func TestRegistry_WaitForSyncContextTimeout(t *testing.T) {
	r := NewRegistry()

	// Sync delay longer than the context timeout.
	r.Register(&mockCollector{name: "pod_memory", syncDelay: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := r.WaitForSync(ctx); err == nil {
		t.Fatal("expected error on context timeout")
	}
}

func TestRegistry_StopAll(t *testing.T) {
	r := NewRegistry()

	c1 := &mockCollector{name: "pod_memory"}
	c2 := &mockCollector{name: "node_capacity"}

	r.Register(c1)
	r.Register(c2)

	// Must start before stopping.
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}

	r.StopAll()

	if !c1.isStopped() || !c2.isStopped() {
		t.Error("expected all collectors to be stopped")
	}
}

func TestRegistry_StopAllIdempotent(t *testing.T) {
	r := NewRegistry()

	var stopCount atomic.Int32
	c := &countingCollector{name: "pod_memory", stopCount: &stopCount}

	r.Register(c)

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}

	r.StopAll()
	r.StopAll() // second call should be a no-op

	if stopCount.Load() != 1 {
		t.Errorf("expected Stop called once, got %d", stopCount.Load())
	}
}

// countingCollector counts how many times Stop is called.
type countingCollector struct {
	name      string
	stopCount *atomic.Int32
}

func (c *countingCollector) Name() string                        { return c.name }
func (c *countingCollector) Start(_ context.Context) error       { return nil }
func (c *countingCollector) WaitForSync(_ context.Context) error { return nil }
func (c *countingCollector) Stop()                               { c.stopCount.Add(1) }

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry()
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("expected no error for empty registry, got %v", err)
	}
	if err := r.WaitForSync(context.Background()); err != nil {
		t.Fatalf("expected no error for empty registry, got %v", err)
	}
	// Should not panic.
	r.StopAll()
}
