// Package collector manages the lifecycle of the agent's background
// pollers.
package collector

import "context"

// Collector is a background poller with a start/sync/stop lifecycle.
type Collector interface {
	// Name returns the collector's name (e.g., "pod_memory").
	Name() string
	// Start launches the polling goroutine.
	Start(ctx context.Context) error
	// WaitForSync blocks until the first poll completes.
	WaitForSync(ctx context.Context) error
	// Stop stops the collector and waits for its goroutine to exit.
	Stop()
}
