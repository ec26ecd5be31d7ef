package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/kubeadapt/gpuwatch-agent/internal/config"
	agenterrors "github.com/kubeadapt/gpuwatch-agent/internal/errors"
	"github.com/kubeadapt/gpuwatch-agent/internal/observability"
	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

// Client submits gauge series payloads to the metrics backend over HTTP
// with streaming zstd compression. It performs exactly one attempt per
// Submit call: failures propagate to the caller, and pacing policy (backoff
// on 429/402, stop on auth failure) lives in the agent state machine.
type Client struct {
	httpClient     *http.Client
	config         *config.Config
	metrics        *observability.Metrics
	errorCollector *agenterrors.ErrorCollector
}

// NewClient creates a transport Client with middleware applied.
func NewClient(cfg *config.Config, metrics *observability.Metrics, errCollector *agenterrors.ErrorCollector) *Client {
	// Use an explicit transport instead of http.DefaultTransport to avoid
	// sharing mutable state with other code in the process.
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	// Auth middleware decorates every request with the bearer token.
	rt := WithAuth(cfg.APIKey, base)
	if cfg.DebugEndpoints {
		rt = WithLogging(slog.Default(), rt)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: rt,
		},
		config:         cfg,
		metrics:        metrics,
		errorCollector: errCollector,
	}
}

// Submit streams one MetricsPayload to the backend using io.Pipe + zstd
// compression. A failure is returned to the caller without any internal
// retry, wrapped as a SUBMISSION_FAILED agent error.
func (c *Client) Submit(ctx context.Context, payload *model.MetricsPayload) (*model.SubmitResponse, error) {
	start := time.Now()

	result, compressedBytes, err := c.doSubmit(ctx, payload)

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.SubmitDuration.Observe(elapsed.Seconds())
		if compressedBytes > 0 {
			c.metrics.PayloadBytes.WithLabelValues("compressed").Observe(float64(compressedBytes))
		}
	}

	if err != nil {
		if c.errorCollector != nil {
			c.errorCollector.Report(agenterrors.AgentError{
				Code:      agenterrors.ErrSubmissionFailed,
				Message:   fmt.Sprintf("metric submission failed: %v", err),
				Component: "transport",
				Timestamp: time.Now().UnixMilli(),
				Err:       err,
			})
		}
		return nil, &agenterrors.AgentError{
			Code:      agenterrors.ErrSubmissionFailed,
			Message:   fmt.Sprintf("submitting %d series: %v", len(payload.Series), err),
			Component: "transport",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		}
	}

	return result, nil
}

// doSubmit performs a single HTTP POST with streaming compression.
func (c *Client) doSubmit(ctx context.Context, payload *model.MetricsPayload) (*model.SubmitResponse, int64, error) {
	pr, pw := io.Pipe()

	// CountingWriter wraps the pipe writer to track compressed bytes.
	cw := NewCountingWriter(pw)

	zw, err := zstd.NewWriter(cw, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = pw.Close()
		return nil, 0, fmt.Errorf("transport: failed to create zstd encoder: %w", err)
	}

	// Goroutine: encode JSON → zstd → pipe.
	go func() {
		encodeErr := json.NewEncoder(zw).Encode(payload)
		// Close zstd first to flush, then close the pipe.
		closeErr := zw.Close()
		if encodeErr != nil {
			pw.CloseWithError(fmt.Errorf("transport: JSON encode failed: %w", encodeErr))
		} else if closeErr != nil {
			pw.CloseWithError(fmt.Errorf("transport: zstd close failed: %w", closeErr))
		} else {
			_ = pw.Close()
		}
	}()

	url := c.config.BackendURL + "/api/v1/series"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		_ = pr.Close()
		return nil, 0, fmt.Errorf("transport: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "zstd")
	req.Header.Set("X-Agent-ID", c.config.AgentID)
	req.Header.Set("X-Agent-Version", c.config.AgentVersion)
	req.Header.Set("X-Node-Name", c.config.NodeName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, cw.Count(), fmt.Errorf("transport: HTTP request failed: %w", err)
	}

	result, err := ParseResponse(resp)
	if err != nil {
		return nil, cw.Count(), err
	}

	return result, cw.Count(), nil
}
