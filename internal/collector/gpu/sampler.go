package gpu

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"time"
)

const sampleTimeout = 10 * time.Second

// StatsSource produces the raw per-process GPU memory accounting text
// consumed by ParseProcessStats. Abstracted for testability.
type StatsSource interface {
	Sample(ctx context.Context) ([]byte, error)
}

// smiSampler implements StatsSource by running the nvidia-smi binary.
type smiSampler struct {
	path string
}

// NewNvidiaSMISampler creates a StatsSource that runs nvidia-smi at the
// given path with the compute-apps accounting query.
func NewNvidiaSMISampler(path string) StatsSource {
	return &smiSampler{path: path}
}

func (s *smiSampler) Sample(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.path,
		"--query-compute-apps=pid,used_gpu_memory",
		"--format=csv",
	)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %s: %w (stderr: %s)",
				s.path, err, bytes.TrimSpace(exitErr.Stderr))
		}
		return nil, fmt.Errorf("running %s: %w", s.path, err)
	}

	return out, nil
}
