package model

// WorkloadMetadata is the durable identity of the pod that owns a GPU
// process. It is resolved once per PID and cached by the reconciliation
// store; the labels are passed through to the metrics backend as tags
// without being inspected.
type WorkloadMetadata struct {
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// PodMemory is one metrics-server working-set sample for a pod, used for
// the companion pod-memory gauge.
type PodMemory struct {
	Namespace       string `json:"namespace"`
	Name            string `json:"name"`
	WorkingSetBytes int64  `json:"working_set_bytes"`
	Timestamp       int64  `json:"timestamp"`
}
