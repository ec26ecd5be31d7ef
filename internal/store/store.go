package store

import "github.com/kubeadapt/gpuwatch-agent/pkg/model"

// Store is the in-memory state of the watchdog.
//
// Processes is the reconciliation store: PID → last-known workload metadata.
// It is mutated only by the watchdog's end-of-round Replace, so after every
// successful round its key set equals exactly the PID set of the most recent
// sample. PodMemory holds metrics-server working-set samples keyed by
// "namespace/name" and is written by the podmetrics collector.
type Store struct {
	Processes *TypedStore[model.WorkloadMetadata]
	PodMemory *TypedStore[model.PodMemory]
}

// NewStore creates a Store with all typed stores initialized.
func NewStore() *Store {
	return &Store{
		Processes: NewTypedStore[model.WorkloadMetadata](),
		PodMemory: NewTypedStore[model.PodMemory](),
	}
}

// ItemCounts returns the number of items in each typed store.
// Implements health.StoreStats.
func (s *Store) ItemCounts() map[string]int {
	return map[string]int{
		"processes":  s.Processes.Len(),
		"pod_memory": s.PodMemory.Len(),
	}
}

// LastUpdatedTimes returns the UnixMilli timestamp of the last update for
// each typed store.
func (s *Store) LastUpdatedTimes() map[string]int64 {
	return map[string]int64{
		"processes":  s.Processes.LastUpdated(),
		"pod_memory": s.PodMemory.LastUpdated(),
	}
}
