// Package podmetrics polls the metrics-server API for pod working-set
// memory, feeding the companion pod-memory gauge.
package podmetrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsv1beta1client "k8s.io/metrics/pkg/client/clientset/versioned/typed/metrics/v1beta1"

	agenterrors "github.com/kubeadapt/gpuwatch-agent/internal/errors"
	"github.com/kubeadapt/gpuwatch-agent/internal/observability"
	"github.com/kubeadapt/gpuwatch-agent/internal/store"
	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

// MetricsAPI abstracts the metrics-server API for testability.
type MetricsAPI interface {
	ListPodMetrics(ctx context.Context) ([]metricsv1beta1.PodMetrics, error)
}

// metricsAPIClient wraps the real metrics client to implement MetricsAPI.
type metricsAPIClient struct {
	client metricsv1beta1client.MetricsV1beta1Interface
}

func (c *metricsAPIClient) ListPodMetrics(ctx context.Context) ([]metricsv1beta1.PodMetrics, error) {
	list, err := c.client.PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Collector polls the metrics-server API on a timer and replaces the
// pod-memory store with each poll's results, so pods that disappear
// between polls are purged.
type Collector struct {
	api      MetricsAPI
	st       *store.Store
	metrics  *observability.Metrics
	errors   *agenterrors.ErrorCollector
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}

	syncOnce sync.Once
	synced   chan struct{}
}

// New creates a Collector that polls using the given MetricsAPI.
func New(api MetricsAPI, st *store.Store, metrics *observability.Metrics, errs *agenterrors.ErrorCollector, interval time.Duration) *Collector {
	return &Collector{
		api:      api,
		st:       st,
		metrics:  metrics,
		errors:   errs,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		synced:   make(chan struct{}),
	}
}

// NewFromClient creates a Collector using a real metrics-server client.
func NewFromClient(client metricsv1beta1client.MetricsV1beta1Interface, st *store.Store, metrics *observability.Metrics, errs *agenterrors.ErrorCollector, interval time.Duration) *Collector {
	return New(&metricsAPIClient{client: client}, st, metrics, errs, interval)
}

// Name returns the collector name.
func (c *Collector) Name() string { return "pod_memory" }

// Start launches the background polling goroutine.
func (c *Collector) Start(ctx context.Context) error {
	go c.run(ctx)
	return nil
}

// WaitForSync blocks until the first poll completes or ctx is canceled.
func (c *Collector) WaitForSync(ctx context.Context) error {
	select {
	case <-c.synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the collector to stop and waits for the goroutine to exit.
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	// Poll immediately on start.
	c.poll(ctx)
	c.syncOnce.Do(func() { close(c.synced) })

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.poll(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) poll(ctx context.Context) {
	start := time.Now()
	defer func() {
		c.metrics.PodMetricsPollDuration.Observe(time.Since(start).Seconds())
	}()

	podMetricsList, err := c.api.ListPodMetrics(ctx)
	if err != nil {
		slog.Error("failed to list pod metrics", "error", err)
		c.errors.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrMetricsUnavailable,
			Message:   err.Error(),
			Component: "podmetrics",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		return
	}

	next := make(map[string]model.PodMemory, len(podMetricsList))
	for _, pm := range podMetricsList {
		var workingSet int64
		for _, cm := range pm.Containers {
			memQ := cm.Usage["memory"]
			workingSet += memQ.Value()
		}

		key := pm.Namespace + "/" + pm.Name
		next[key] = model.PodMemory{
			Namespace:       pm.Namespace,
			Name:            pm.Name,
			WorkingSetBytes: workingSet,
			Timestamp:       pm.Timestamp.UnixMilli(),
		}
	}

	c.st.PodMemory.Replace(next)
	c.metrics.StoreItems.WithLabelValues("pod_memory").Set(float64(len(next)))
}
