package watchdog

import (
	"context"
	"sort"

	agenterrors "github.com/kubeadapt/gpuwatch-agent/internal/errors"
	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

// MetricsSubmitter abstracts the metrics backend client for testability.
type MetricsSubmitter interface {
	Submit(ctx context.Context, payload *model.MetricsPayload) (*model.SubmitResponse, error)
}

// Emitter builds one timestamped gauge point per emission and submits it.
// The clock is injected so emission timestamps are deterministic in tests.
type Emitter struct {
	submitter  MetricsSubmitter
	clock      agenterrors.Clock
	metricName string
	host       string
}

// NewEmitter creates an Emitter submitting under the given metric name.
// host is attached to every series; empty means no host tag.
func NewEmitter(submitter MetricsSubmitter, clock agenterrors.Clock, metricName, host string) *Emitter {
	return &Emitter{
		submitter:  submitter,
		clock:      clock,
		metricName: metricName,
		host:       host,
	}
}

// Emit submits a single gauge point for the workload: the value is the
// sampled MiB count passed through as a float, the timestamp is the clock's
// current time, and the tags are the workload labels flattened to
// "key:value" in sorted key order. Submission failures propagate; retry
// policy belongs to the caller's scheduling layer.
func (e *Emitter) Emit(ctx context.Context, md model.WorkloadMetadata, usedMiB int64) error {
	ts := float64(e.clock.Now().UnixNano()) / 1e9

	payload := &model.MetricsPayload{
		Series: []model.Series{{
			Metric: e.metricName,
			Type:   model.GaugeType,
			Points: []model.Point{model.NewPoint(ts, float64(usedMiB))},
			Tags:   TagsFromLabels(md.Labels),
			Host:   e.host,
		}},
	}

	_, err := e.submitter.Submit(ctx, payload)
	return err
}

// TagsFromLabels flattens a label mapping into "key:value" tags in sorted
// key order, so a given label set always produces the same tag sequence.
func TagsFromLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]string, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, k+":"+labels[k])
	}
	return tags
}
