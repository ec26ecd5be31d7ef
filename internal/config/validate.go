package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: GPUWATCH_API_KEY is required")
	}

	if c.BackendURL == "" {
		return fmt.Errorf("config: GPUWATCH_BACKEND_URL is required")
	}
	if !c.AllowInsecure && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("config: GPUWATCH_BACKEND_URL must use https:// (got %q); set GPUWATCH_ALLOW_INSECURE=true to override", c.BackendURL)
	}

	if c.MetricName == "" {
		return fmt.Errorf("config: GPUWATCH_METRIC_NAME must not be empty")
	}

	if c.SampleInterval < 5*time.Second {
		return fmt.Errorf("config: SampleInterval must be >= 5s, got %v", c.SampleInterval)
	}

	if c.PodMemoryEnabled && c.PodMemoryInterval < 5*time.Second {
		return fmt.Errorf("config: PodMemoryInterval must be >= 5s, got %v", c.PodMemoryInterval)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: RequestTimeout must be > 0, got %v", c.RequestTimeout)
	}

	if c.NvidiaSMIPath == "" {
		return fmt.Errorf("config: GPUWATCH_NVIDIA_SMI_PATH must not be empty")
	}

	if c.ProcRoot == "" {
		return fmt.Errorf("config: GPUWATCH_PROC_ROOT must not be empty")
	}

	if c.HealthPort < 1 || c.HealthPort > 65535 {
		return fmt.Errorf("config: HealthPort must be 1-65535, got %d", c.HealthPort)
	}

	return nil
}
