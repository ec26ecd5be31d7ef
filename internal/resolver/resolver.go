// Package resolver maps OS process IDs to the Kubernetes pods that own
// them by walking the process's cgroup membership and matching the
// container ID against pod container statuses.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	agenterrors "github.com/kubeadapt/gpuwatch-agent/internal/errors"
	"github.com/kubeadapt/gpuwatch-agent/internal/observability"
	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

const component = "resolver"

// Resolver resolves a PID to the workload metadata of the pod that owns it.
// The pod list is fetched fresh on every call; callers that want caching
// (the reconciliation store) layer it on top.
type Resolver struct {
	client   kubernetes.Interface
	procRoot string
	metrics  *observability.Metrics
}

// New creates a Resolver reading cgroup files under procRoot (normally
// "/proc"; the host mount when running containerized). metrics may be nil.
func New(client kubernetes.Interface, procRoot string, metrics *observability.Metrics) *Resolver {
	return &Resolver{client: client, procRoot: procRoot, metrics: metrics}
}

// Resolve maps pid to its owning pod's metadata. It fails with a typed,
// descriptive error rather than returning a partial result: the process may
// have exited (PROCESS_NOT_FOUND), its cgroup content may be unusable
// (CONTAINER_ID_NOT_FOUND), or no pod may reference its container
// (POD_NOT_FOUND).
func (r *Resolver) Resolve(ctx context.Context, pid string) (model.WorkloadMetadata, error) {
	path := filepath.Join(r.procRoot, pid, "cgroup")

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.WorkloadMetadata{}, &agenterrors.AgentError{
				Code:      agenterrors.ErrProcessNotFound,
				Message:   fmt.Sprintf("process %s not found: file %s does not exist", pid, path),
				Component: component,
				Timestamp: time.Now().UnixMilli(),
				Err:       err,
			}
		}
		return model.WorkloadMetadata{}, fmt.Errorf("reading %s: %w", path, err)
	}

	containerID, ok := ContainerIDFromCgroup(string(content))
	if !ok {
		return model.WorkloadMetadata{}, &agenterrors.AgentError{
			Code:      agenterrors.ErrContainerIDNotFound,
			Message:   fmt.Sprintf("container ID not found in %s for pid %s", path, pid),
			Component: component,
			Timestamp: time.Now().UnixMilli(),
		}
	}

	listStart := time.Now()
	list, err := r.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if r.metrics != nil {
		r.metrics.PodListDuration.Observe(time.Since(listStart).Seconds())
	}
	if err != nil {
		return model.WorkloadMetadata{}, &agenterrors.AgentError{
			Code:      agenterrors.ErrPodNotFound,
			Message:   fmt.Sprintf("listing pods for container ID %s: %v", containerID, err),
			Component: component,
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		}
	}

	for i := range list.Items {
		pod := &list.Items[i]
		for _, cs := range pod.Status.ContainerStatuses {
			if stripRuntimePrefix(cs.ContainerID) == containerID {
				return model.WorkloadMetadata{
					Namespace: pod.Namespace,
					Name:      pod.Name,
					Labels:    pod.Labels,
				}, nil
			}
		}
	}

	return model.WorkloadMetadata{}, &agenterrors.AgentError{
		Code:      agenterrors.ErrPodNotFound,
		Message:   fmt.Sprintf("pod not found for container ID %s (pid %s)", containerID, pid),
		Component: component,
		Timestamp: time.Now().UnixMilli(),
	}
}

// stripRuntimePrefix removes the container runtime scheme from a container
// status ID, e.g. "docker://abc" or "containerd://abc" → "abc".
func stripRuntimePrefix(id string) string {
	if i := strings.Index(id, "://"); i >= 0 {
		return id[i+3:]
	}
	return id
}
