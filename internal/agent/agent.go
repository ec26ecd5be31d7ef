// Package agent orchestrates the watchdog lifecycle: it runs the
// sampling loop, paces submissions through the state machine, and
// exposes readiness and debug state to the health server.
package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kubeadapt/gpuwatch-agent/internal/collector"
	"github.com/kubeadapt/gpuwatch-agent/internal/collector/gpu"
	"github.com/kubeadapt/gpuwatch-agent/internal/config"
	"github.com/kubeadapt/gpuwatch-agent/internal/errors"
	"github.com/kubeadapt/gpuwatch-agent/internal/observability"
	"github.com/kubeadapt/gpuwatch-agent/internal/store"
	"github.com/kubeadapt/gpuwatch-agent/internal/transport"
	"github.com/kubeadapt/gpuwatch-agent/internal/watchdog"
)

// syncTimeout bounds how long startup waits for the first collector poll.
const syncTimeout = 2 * time.Minute

// allStates enumerates the lifecycle states for the state gauge.
var allStates = []AgentState{StateStarting, StateRunning, StateBackoff, StateStopped, StateExiting}

// Agent wires together the sampler, watchdog, collectors, and state
// machine, and runs the sampling round loop.
type Agent struct {
	config         *config.Config
	sampler        gpu.StatsSource
	watchdog       *watchdog.Watchdog
	podEmitter     watchdog.MetricEmitter // nil when pod-memory emission is disabled
	registry       *collector.Registry
	store          *store.Store
	stateMachine   *StateMachine
	errorCollector *errors.ErrorCollector
	metrics        *observability.Metrics
	selfPID        string

	ready     atomic.Bool
	startedAt time.Time
}

// NewAgent creates an Agent with all required dependencies. podEmitter
// may be nil, disabling the companion pod-memory gauge.
func NewAgent(
	cfg *config.Config,
	sampler gpu.StatsSource,
	wd *watchdog.Watchdog,
	podEmitter watchdog.MetricEmitter,
	registry *collector.Registry,
	st *store.Store,
	stateMachine *StateMachine,
	errCollector *errors.ErrorCollector,
	metrics *observability.Metrics,
	selfPID string,
) *Agent {
	return &Agent{
		config:         cfg,
		sampler:        sampler,
		watchdog:       wd,
		podEmitter:     podEmitter,
		registry:       registry,
		store:          st,
		stateMachine:   stateMachine,
		errorCollector: errCollector,
		metrics:        metrics,
		selfPID:        selfPID,
		startedAt:      time.Now(),
	}
}

// IsReady reports whether the agent has completed startup and is
// actively sampling. Implements health.ReadinessChecker.
func (a *Agent) IsReady() bool {
	return a.ready.Load()
}

// ProcessTable returns the current PID → workload mapping, or nil when
// no round has populated the store yet. Implements health.ProcessesProvider.
func (a *Agent) ProcessTable() interface{} {
	if a.store.Processes.Len() == 0 {
		return nil
	}
	return a.store.Processes.Snapshot()
}

// Run executes the agent lifecycle: start collectors, wait for their
// first poll, then enter the sampling loop until the context is
// canceled or the state machine reaches a terminal state.
func (a *Agent) Run(ctx context.Context) error {
	// 1. Start background collectors.
	if err := a.registry.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start collectors: %w", err)
	}
	defer a.registry.StopAll()

	// 2. Wait for the collectors' first poll, bounded.
	syncCtx, syncCancel := context.WithTimeout(ctx, syncTimeout)
	defer syncCancel()
	syncStart := time.Now()
	if err := a.registry.WaitForSync(syncCtx); err != nil {
		slog.Warn("collector sync incomplete, continuing without pod memory context",
			"error", err,
			"elapsed", time.Since(syncStart).Round(time.Millisecond),
		)
	} else {
		slog.Info("collector sync completed",
			"elapsed", time.Since(syncStart).Round(time.Millisecond),
		)
	}

	// 3. Transition to Running.
	a.stateMachine.TransitionTo(StateRunning, "startup complete")
	a.setStateGauge()
	a.ready.Store(true)
	slog.Info("agent is ready", "state", StateRunning, "node", a.config.NodeName)

	// 4. Main loop.
	ticker := time.NewTicker(a.config.SampleInterval)
	defer ticker.Stop()

	// Run the first round immediately.
	a.doRound(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		switch state := a.stateMachine.State(); state {
		case StateRunning:
			a.doRound(ctx)
		case StateBackoff:
			if a.stateMachine.IsBackoffExpired() {
				a.stateMachine.TransitionTo(StateRunning, "backoff expired")
				a.doRound(ctx)
			} else {
				slog.Debug("in backoff, skipping round",
					"remaining", a.stateMachine.BackoffRemaining())
			}
		case StateStopped, StateExiting:
			slog.Info("agent exiting", "state", state,
				"reason", a.stateMachine.StateReason())
			return nil
		}
		a.setStateGauge()

		if s := a.stateMachine.State(); s == StateStopped || s == StateExiting {
			slog.Info("agent exiting", "state", s,
				"reason", a.stateMachine.StateReason())
			return nil
		}
	}
}

// doRound runs one sampling round: sample GPU process stats, reconcile
// and emit through the watchdog, then emit pod-memory companions.
func (a *Agent) doRound(ctx context.Context) {
	start := time.Now()
	defer func() {
		a.metrics.RoundDuration.Observe(time.Since(start).Seconds())
	}()

	sampleStart := time.Now()
	raw, err := a.sampler.Sample(ctx)
	a.metrics.SampleDuration.Observe(time.Since(sampleStart).Seconds())
	if err != nil {
		slog.Error("GPU stats sampling failed", "error", err)
		a.errorCollector.Report(errors.AgentError{
			Code:      errors.ErrStatsUnavailable,
			Message:   err.Error(),
			Component: "agent",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		a.metrics.RoundsTotal.WithLabelValues("error").Inc()
		return
	}

	samples := gpu.ParseProcessStats(raw, a.selfPID)

	if err := a.watchdog.Update(ctx, samples); err != nil {
		slog.Error("reconciliation round failed", "error", err)
		a.metrics.RoundsTotal.WithLabelValues("error").Inc()

		var se *transport.StatusError
		if stderrors.As(err, &se) {
			a.stateMachine.HandleHTTPStatus(se.StatusCode, se.RetryAfterSeconds)
		}
		return
	}

	a.stateMachine.HandleHTTPStatus(200, 0)
	a.emitPodMemory(ctx)
	a.metrics.RoundsTotal.WithLabelValues("success").Inc()
	slog.Debug("round completed", "processes", len(samples),
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// emitPodMemory submits one working-set gauge per GPU-owning pod, in
// MiB to match the GPU memory gauge's unit. Pod memory failures do not
// fail the round: the GPU gauges already went out.
func (a *Agent) emitPodMemory(ctx context.Context) {
	if a.podEmitter == nil {
		return
	}

	seen := make(map[string]bool)
	for _, md := range a.store.Processes.Snapshot() {
		key := md.Namespace + "/" + md.Name
		if seen[key] {
			continue
		}
		seen[key] = true

		pm, ok := a.store.PodMemory.Get(key)
		if !ok {
			continue
		}
		if err := a.podEmitter.Emit(ctx, md, pm.WorkingSetBytes/(1024*1024)); err != nil {
			slog.Warn("pod memory emission failed", "pod", key, "error", err)
			return
		}
	}
}

// setStateGauge mirrors the state machine into the state gauge vector.
func (a *Agent) setStateGauge() {
	current := a.stateMachine.State()
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1.0
		}
		a.metrics.AgentState.WithLabelValues(string(s)).Set(v)
	}
}
