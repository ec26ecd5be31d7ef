// Package discovery probes the cluster and the local node for optional
// capabilities at startup.
package discovery

import (
	"context"
	"fmt"
	"strings"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
)

const apiGroupMetrics = "metrics.k8s.io"

// Capabilities describes optional features detected at startup.
// Results are computed once and cached for the agent's lifetime.
type Capabilities struct {
	MetricsServer bool  // metrics.k8s.io API group exists
	NodeHasGPU    bool  // the agent's node advertises NVIDIA GPU capacity
	GPUCapacity   int64 // allocatable nvidia.com/gpu count on the node
}

// Detect probes the cluster for the metrics API group and inspects the
// agent's own node for GPU capacity. Intended to run once at startup.
func Detect(ctx context.Context, client kubernetes.Interface, discoveryClient discovery.DiscoveryInterface, nodeName string) (*Capabilities, error) {
	caps := &Capabilities{}

	groups, err := discoveryClient.ServerGroups()
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to list server groups: %w", err)
	}
	for _, g := range groups.Groups {
		if g.Name == apiGroupMetrics {
			caps.MetricsServer = true
			break
		}
	}

	node, err := client.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		// A missing node object is not fatal: the agent can still sample
		// nvidia-smi directly.
		return caps, nil
	}
	caps.NodeHasGPU, caps.GPUCapacity = gpuCapacity(node)

	return caps, nil
}

// HasAPIGroup checks whether a specific API group is registered with the cluster.
func HasAPIGroup(discoveryClient discovery.DiscoveryInterface, group string) (bool, error) {
	groups, err := discoveryClient.ServerGroups()
	if err != nil {
		return false, fmt.Errorf("discovery: failed to list server groups: %w", err)
	}

	for _, g := range groups.Groups {
		if g.Name == group {
			return true, nil
		}
	}
	return false, nil
}

// gpuCapacity reports whether the node advertises whole or MIG-sliced
// NVIDIA GPUs, and the whole-GPU allocatable count.
func gpuCapacity(node *v1.Node) (bool, int64) {
	if q, ok := node.Status.Allocatable[v1.ResourceName("nvidia.com/gpu")]; ok && q.Value() > 0 {
		return true, q.Value()
	}
	for rName := range node.Status.Allocatable {
		if strings.HasPrefix(string(rName), "nvidia.com/mig-") {
			return true, 0
		}
	}
	return false, 0
}
