package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeadapt/gpuwatch-agent/internal/config"
	agenterrors "github.com/kubeadapt/gpuwatch-agent/internal/errors"
	"github.com/kubeadapt/gpuwatch-agent/internal/observability"
	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		APIKey:         "test-key",
		BackendURL:     backendURL,
		AgentID:        "agent-1",
		AgentVersion:   "test",
		NodeName:       "gpu-node-1",
		RequestTimeout: 5 * time.Second,
		AllowInsecure:  true,
	}
}

func gaugePayload() *model.MetricsPayload {
	return &model.MetricsPayload{
		Series: []model.Series{{
			Metric: "kubernetes.gpu.usage",
			Type:   model.GaugeType,
			Points: []model.Point{model.NewPoint(1641835881.482141, 2.0)},
			Tags:   []string{"a:b", "c:d"},
		}},
	}
}

func decodeBody(t *testing.T, r io.Reader) *model.MetricsPayload {
	t.Helper()
	zr, err := zstd.NewReader(r)
	require.NoError(t, err)
	defer zr.Close()

	var payload model.MetricsPayload
	require.NoError(t, json.NewDecoder(zr).Decode(&payload))
	return &payload
}

func TestClient_Submit(t *testing.T) {
	var gotAuth, gotPath, gotEncoding string
	var gotPayload *model.MetricsPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotEncoding = r.Header.Get("Content-Encoding")
		gotPayload = decodeBody(t, r.Body)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(model.SubmitResponse{Status: "ok", ReceivedAt: 123})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), observability.NewMetrics(), nil)
	resp, err := c.Submit(context.Background(), gaugePayload())
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/api/v1/series", gotPath)
	assert.Equal(t, "zstd", gotEncoding)

	require.NotNil(t, gotPayload)
	require.Len(t, gotPayload.Series, 1)
	s := gotPayload.Series[0]
	assert.Equal(t, "kubernetes.gpu.usage", s.Metric)
	assert.Equal(t, model.GaugeType, s.Type)
	assert.Equal(t, []string{"a:b", "c:d"}, s.Tags)
	require.Len(t, s.Points, 1)
	assert.InDelta(t, 1641835881.482141, s.Points[0].Timestamp(), 1e-6)
	assert.InDelta(t, 2.0, s.Points[0].Value(), 1e-9)
}

func TestClient_Submit_EmptyAcceptBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), observability.NewMetrics(), nil)
	resp, err := c.Submit(context.Background(), gaugePayload())
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
}

func TestClient_Submit_NoInternalRetry(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), observability.NewMetrics(), nil)
	_, err := c.Submit(context.Background(), gaugePayload())
	require.Error(t, err)

	assert.Equal(t, int64(1), attempts.Load(), "submission must not be retried internally")
}

func TestClient_Submit_StatusErrors(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		retryAfter     string
		wantRetryAfter int
	}{
		{"unauthorized", http.StatusUnauthorized, "", 0},
		{"quota exceeded", http.StatusPaymentRequired, "", 0},
		{"deprecated", http.StatusGone, "", 0},
		{"rate limited", http.StatusTooManyRequests, "42", 42},
		{"server error", http.StatusInternalServerError, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			ec := agenterrors.NewErrorCollector(agenterrors.RealClock{})
			c := NewClient(testConfig(srv.URL), observability.NewMetrics(), ec)
			_, err := c.Submit(context.Background(), gaugePayload())
			require.Error(t, err)

			var ae *agenterrors.AgentError
			require.True(t, stderrors.As(err, &ae))
			assert.Equal(t, agenterrors.ErrSubmissionFailed, ae.Code)

			var se *StatusError
			require.True(t, stderrors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.wantRetryAfter, se.RetryAfterSeconds)

			// Submission failures surface in the error collector.
			codes := ec.GetActiveErrorCodes()
			require.Len(t, codes, 1)
			assert.Equal(t, string(agenterrors.ErrSubmissionFailed), codes[0])
		})
	}
}

func TestClient_Submit_ConnectionRefused(t *testing.T) {
	c := NewClient(testConfig("http://127.0.0.1:1"), observability.NewMetrics(), nil)
	_, err := c.Submit(context.Background(), gaugePayload())
	require.Error(t, err)

	var ae *agenterrors.AgentError
	require.True(t, stderrors.As(err, &ae))
	assert.Equal(t, agenterrors.ErrSubmissionFailed, ae.Code)
}
