package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Config holds all agent configuration values.
type Config struct {
	APIKey         string
	BackendURL     string
	NodeName       string
	AgentID        string
	MetricName     string
	SampleInterval time.Duration
	RequestTimeout time.Duration
	HealthPort     int
	AgentVersion   string

	// GPU stats source
	NvidiaSMIPath string // GPUWATCH_NVIDIA_SMI_PATH, default: "nvidia-smi"
	ProcRoot      string // GPUWATCH_PROC_ROOT, default: "/proc"

	// Security
	AllowInsecure  bool // GPUWATCH_ALLOW_INSECURE, default: false — allows http:// BackendURL
	DebugEndpoints bool // GPUWATCH_DEBUG_ENDPOINTS, default: false — enables pprof/debug on health port

	// Pod memory context (metrics-server)
	PodMemoryEnabled  bool          // GPUWATCH_POD_MEMORY_ENABLED, default: true
	PodMemoryMetric   string        // GPUWATCH_POD_MEMORY_METRIC, default: "kubernetes.gpu.pod_memory.usage"
	PodMemoryInterval time.Duration // GPUWATCH_POD_MEMORY_INTERVAL, default: SampleInterval
}

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset values.
func Load() Config {
	cfg := Config{
		APIKey:         os.Getenv("GPUWATCH_API_KEY"),
		BackendURL:     envOrDefault("GPUWATCH_BACKEND_URL", "https://api.kubeadapt.io"),
		NodeName:       os.Getenv("GPUWATCH_NODE_NAME"),
		AgentID:        os.Getenv("GPUWATCH_AGENT_ID"),
		MetricName:     envOrDefault("GPUWATCH_METRIC_NAME", "kubernetes.gpu.usage"),
		SampleInterval: parseDuration("GPUWATCH_SAMPLE_INTERVAL", 30*time.Second),
		RequestTimeout: parseDuration("GPUWATCH_REQUEST_TIMEOUT", 30*time.Second),
		HealthPort:     parseInt("GPUWATCH_HEALTH_PORT", 8080),
		AgentVersion:   envOrDefault("GPUWATCH_AGENT_VERSION", "dev"),
		NvidiaSMIPath:  envOrDefault("GPUWATCH_NVIDIA_SMI_PATH", "nvidia-smi"),
		ProcRoot:       envOrDefault("GPUWATCH_PROC_ROOT", "/proc"),
	}

	if cfg.NodeName == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.NodeName = hostname
		}
	}
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.New().String()
	}

	cfg.AllowInsecure = parseBool("GPUWATCH_ALLOW_INSECURE", false)
	cfg.DebugEndpoints = parseBool("GPUWATCH_DEBUG_ENDPOINTS", false)

	cfg.PodMemoryEnabled = parseBool("GPUWATCH_POD_MEMORY_ENABLED", true)
	cfg.PodMemoryMetric = envOrDefault("GPUWATCH_POD_MEMORY_METRIC", "kubernetes.gpu.pod_memory.usage")
	cfg.PodMemoryInterval = parseDuration("GPUWATCH_POD_MEMORY_INTERVAL", cfg.SampleInterval)

	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	// Fallback: treat as integer seconds
	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
