package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for agent self-monitoring.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Sampling round metrics
	RoundDuration  prometheus.Histogram
	RoundsTotal    *prometheus.CounterVec
	SampleDuration prometheus.Histogram

	// Resolution metrics
	ResolutionsTotal *prometheus.CounterVec
	PodListDuration  prometheus.Histogram

	// Emission metrics
	EmissionsTotal *prometheus.CounterVec
	SubmitDuration prometheus.Histogram
	PayloadBytes   *prometheus.HistogramVec

	// Pod memory polling metrics
	PodMetricsPollDuration prometheus.Histogram

	// Store metrics
	StoreItems *prometheus.GaugeVec

	// State metrics
	AgentState *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	sizeBuckets := prometheus.ExponentialBuckets(64, 4, 10)

	m := &Metrics{
		Registry: reg,

		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpuwatch_agent_round_duration_seconds",
			Help:    "Duration of full sampling rounds (sample, reconcile, emit) in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		RoundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpuwatch_agent_rounds_total",
			Help: "Total number of sampling rounds by outcome.",
		}, []string{"status"}),
		SampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpuwatch_agent_sample_duration_seconds",
			Help:    "Duration of GPU stats sampling in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpuwatch_agent_resolutions_total",
			Help: "Total number of PID-to-pod resolutions by outcome.",
		}, []string{"status"}),
		PodListDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpuwatch_agent_pod_list_duration_seconds",
			Help:    "Duration of cluster pod list calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		EmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpuwatch_agent_emissions_total",
			Help: "Total number of gauge point submissions by outcome.",
		}, []string{"status"}),
		SubmitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpuwatch_agent_submit_duration_seconds",
			Help:    "Duration of metric submission calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		PayloadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gpuwatch_agent_payload_bytes",
			Help:    "Size of submitted payloads in bytes.",
			Buckets: sizeBuckets,
		}, []string{"type"}),

		PodMetricsPollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpuwatch_agent_pod_metrics_poll_duration_seconds",
			Help:    "Duration of metrics-server pod metrics polls in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		StoreItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpuwatch_agent_store_items",
			Help: "Current number of items in the store.",
		}, []string{"resource"}),

		AgentState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpuwatch_agent_state",
			Help: "Current agent state (1 = active, 0 = inactive).",
		}, []string{"state"}),
	}

	// Register all metrics with the custom registry.
	reg.MustRegister(
		m.RoundDuration,
		m.RoundsTotal,
		m.SampleDuration,
		m.ResolutionsTotal,
		m.PodListDuration,
		m.EmissionsTotal,
		m.SubmitDuration,
		m.PayloadBytes,
		m.PodMetricsPollDuration,
		m.StoreItems,
		m.AgentState,
	)

	return m
}
