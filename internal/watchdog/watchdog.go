// Package watchdog implements the process-to-workload reconciliation
// engine: it maps sampled GPU process PIDs to durable pod identities,
// reuses identities cached from prior rounds, emits one gauge per sampled
// process, and swaps the reconciliation store to exactly the live PID set
// at the end of each round.
package watchdog

import (
	"context"
	"fmt"

	"github.com/kubeadapt/gpuwatch-agent/internal/observability"
	"github.com/kubeadapt/gpuwatch-agent/internal/store"
	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

// WorkloadResolver maps a PID to the metadata of the pod that owns it.
type WorkloadResolver interface {
	Resolve(ctx context.Context, pid string) (model.WorkloadMetadata, error)
}

// MetricEmitter submits one gauge point for a workload's GPU memory usage.
type MetricEmitter interface {
	Emit(ctx context.Context, md model.WorkloadMetadata, usedMiB int64) error
}

// Watchdog drives one reconciliation round per sampling interval.
type Watchdog struct {
	resolver WorkloadResolver
	emitter  MetricEmitter
	store    *store.Store
	metrics  *observability.Metrics
}

// New creates a Watchdog with its injected collaborators.
func New(resolver WorkloadResolver, emitter MetricEmitter, st *store.Store, metrics *observability.Metrics) *Watchdog {
	return &Watchdog{
		resolver: resolver,
		emitter:  emitter,
		store:    st,
		metrics:  metrics,
	}
}

// Update runs one reconciliation round over samples (PID → used MiB).
//
// For every sampled PID it reuses the metadata cached from a prior round or
// resolves it fresh, emits exactly one gauge, and records the pair into a
// new snapshot. The store is replaced with the snapshot only after every
// PID succeeded: the first resolution or submission failure aborts the
// round, leaving the previous snapshot intact. PIDs absent from samples
// drop out on the swap — exited processes stop being reported next round
// without any per-PID deletion bookkeeping.
func (w *Watchdog) Update(ctx context.Context, samples map[string]int64) error {
	next := make(map[string]model.WorkloadMetadata, len(samples))

	for pid, usedMiB := range samples {
		md, ok := w.store.Processes.Get(pid)
		if ok {
			w.metrics.ResolutionsTotal.WithLabelValues("cache_hit").Inc()
		} else {
			var err error
			md, err = w.resolver.Resolve(ctx, pid)
			if err != nil {
				w.metrics.ResolutionsTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("resolving pid %s: %w", pid, err)
			}
			w.metrics.ResolutionsTotal.WithLabelValues("resolved").Inc()
		}

		if err := w.emitter.Emit(ctx, md, usedMiB); err != nil {
			w.metrics.EmissionsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("emitting for pid %s: %w", pid, err)
		}
		w.metrics.EmissionsTotal.WithLabelValues("success").Inc()

		next[pid] = md
	}

	w.store.Processes.Replace(next)
	w.metrics.StoreItems.WithLabelValues("processes").Set(float64(len(next)))
	return nil
}
