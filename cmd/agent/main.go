package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/kubeadapt/gpuwatch-agent/internal/agent"
	"github.com/kubeadapt/gpuwatch-agent/internal/collector"
	"github.com/kubeadapt/gpuwatch-agent/internal/collector/gpu"
	"github.com/kubeadapt/gpuwatch-agent/internal/collector/podmetrics"
	"github.com/kubeadapt/gpuwatch-agent/internal/config"
	"github.com/kubeadapt/gpuwatch-agent/internal/discovery"
	"github.com/kubeadapt/gpuwatch-agent/internal/errors"
	"github.com/kubeadapt/gpuwatch-agent/internal/health"
	"github.com/kubeadapt/gpuwatch-agent/internal/observability"
	"github.com/kubeadapt/gpuwatch-agent/internal/resolver"
	"github.com/kubeadapt/gpuwatch-agent/internal/store"
	"github.com/kubeadapt/gpuwatch-agent/internal/transport"
	"github.com/kubeadapt/gpuwatch-agent/internal/watchdog"
)

func main() {
	// 1. Load and validate config.
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Create context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	slog.Info("gpuwatch-agent starting",
		"version", cfg.AgentVersion,
		"node", cfg.NodeName,
		"backend_url", cfg.BackendURL,
		"sample_interval", cfg.SampleInterval,
	)

	// 3. Create shared infrastructure.
	metrics := observability.NewMetrics()
	errCollector := errors.NewErrorCollector(errors.RealClock{})
	st := store.NewStore()
	sm := agent.NewStateMachine(errors.RealClock{})
	sm.SetCancelFunc(cancel)

	// 4. Build Kubernetes clients.
	restCfg := buildKubeConfig()
	kubeClient := kubernetes.NewForConfigOrDie(restCfg)
	metricsClient := metricsclientset.NewForConfigOrDie(restCfg)

	// 5. Detect cluster and node capabilities.
	caps, err := discovery.Detect(ctx, kubeClient, kubeClient.Discovery(), cfg.NodeName)
	if err != nil {
		slog.Error("failed to detect capabilities", "error", err)
		os.Exit(1)
	}
	slog.Info("capabilities detected",
		"metrics_server", caps.MetricsServer,
		"node_has_gpu", caps.NodeHasGPU,
		"gpu_capacity", caps.GPUCapacity,
	)
	if !caps.NodeHasGPU {
		slog.Warn("node advertises no NVIDIA GPU capacity; sampling may return no processes",
			"node", cfg.NodeName)
	}

	// 6. Register background collectors.
	registry := collector.NewRegistry()
	if cfg.PodMemoryEnabled && caps.MetricsServer {
		registry.Register(podmetrics.NewFromClient(
			metricsClient.MetricsV1beta1(), st, metrics, errCollector, cfg.PodMemoryInterval,
		))
	}

	// 7. Build the sampling pipeline.
	sampler := gpu.NewNvidiaSMISampler(cfg.NvidiaSMIPath)
	res := resolver.New(kubeClient, cfg.ProcRoot, metrics)
	transportClient := transport.NewClient(&cfg, metrics, errCollector)
	emitter := watchdog.NewEmitter(transportClient, errors.RealClock{}, cfg.MetricName, cfg.NodeName)
	wd := watchdog.New(res, emitter, st, metrics)

	var podEmitter watchdog.MetricEmitter
	if cfg.PodMemoryEnabled && caps.MetricsServer {
		podEmitter = watchdog.NewEmitter(transportClient, errors.RealClock{}, cfg.PodMemoryMetric, cfg.NodeName)
	}

	selfPID := strconv.Itoa(os.Getpid())
	ag := agent.NewAgent(&cfg, sampler, wd, podEmitter, registry, st, sm, errCollector, metrics, selfPID)

	// 8. Start health server.
	healthSrv := health.NewServer(cfg.HealthPort, metrics, ag, ag, st, cfg.DebugEndpoints)
	if err := healthSrv.Start(); err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}

	// 9. Start memory pressure monitor.
	memMon := agent.NewMemoryPressureMonitor(0.8, func() { runtime.GC() }, 30*time.Second, nil)
	memMon.Start()

	// 10. Run agent (blocks until context is canceled or the backend
	// stops the agent).
	if err := ag.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("agent exited with error", "error", err)
	}

	// 11. Graceful shutdown.
	memMon.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}

	slog.Info("gpuwatch-agent stopped")
}

// buildKubeConfig creates a Kubernetes REST config.
// It tries in-cluster config first, then falls back to kubeconfig file
// (from $KUBECONFIG or the default ~/.kube/config).
func buildKubeConfig() *rest.Config {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		slog.Info("using in-cluster kubernetes config")
		return cfg
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		kubeconfig = clientcmd.RecommendedHomeFile
	}

	cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		slog.Error("failed to build kubernetes config", "error", err)
		os.Exit(1)
	}
	slog.Info("using kubeconfig file", "path", kubeconfig)
	return cfg
}
