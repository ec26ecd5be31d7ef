package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

// authTransport adds an Authorization: Bearer header to every request.
type authTransport struct {
	token string
	next  http.RoundTripper
}

// WithAuth wraps a RoundTripper with bearer-token authorization.
func WithAuth(token string, next http.RoundTripper) http.RoundTripper {
	return &authTransport{token: token, next: next}
}

func (a *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+a.token)
	return a.next.RoundTrip(req)
}

// loggingTransport logs request method/URL and response status.
type loggingTransport struct {
	logger *slog.Logger
	next   http.RoundTripper
}

// WithLogging wraps a RoundTripper with request/response logging.
func WithLogging(logger *slog.Logger, next http.RoundTripper) http.RoundTripper {
	return &loggingTransport{logger: logger, next: next}
}

func (l *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.next.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.Error("HTTP request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return resp, err
	}

	l.logger.Info("HTTP request completed",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// StatusError is a submission failure carrying the backend's HTTP status so
// the agent state machine can react (backoff, stop, exit).
type StatusError struct {
	StatusCode        int
	RetryAfterSeconds int
	Msg               string
}

func (e *StatusError) Error() string {
	return e.Msg
}

// ParseResponse reads an HTTP response and returns the decoded result, or a
// StatusError describing the rejection.
func ParseResponse(resp *http.Response) (*model.SubmitResponse, error) {
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		var result model.SubmitResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			// Some backends return an empty body on accept.
			if err == io.EOF {
				return &model.SubmitResponse{Status: "accepted"}, nil
			}
			return nil, fmt.Errorf("transport: failed to decode %d response: %w", resp.StatusCode, err)
		}
		return &result, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("transport: authentication failed (HTTP %d)", resp.StatusCode),
		}

	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, &StatusError{
			StatusCode:        resp.StatusCode,
			RetryAfterSeconds: retryAfterSeconds(resp),
			Msg:               "transport: quota exceeded (HTTP 402)",
		}

	case resp.StatusCode == http.StatusGone:
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Msg:        "transport: agent deprecated (HTTP 410)",
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &StatusError{
			StatusCode:        resp.StatusCode,
			RetryAfterSeconds: retryAfterSeconds(resp),
			Msg:               "transport: rate limited (HTTP 429)",
		}

	case resp.StatusCode >= 500:
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("transport: server error (HTTP %d)", resp.StatusCode),
		}

	default:
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("transport: unexpected status (HTTP %d)", resp.StatusCode),
		}
	}
}

// retryAfterSeconds extracts the backoff hint from a 402/429 response.
// It checks the Retry-After header first, then falls back to parsing the
// response body for retry_after_seconds.
func retryAfterSeconds(resp *http.Response) int {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return secs
		}
	}

	if resp.Body != nil {
		var errResp model.SubmitErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if errResp.RetryAfterSeconds != nil && *errResp.RetryAfterSeconds > 0 {
				return *errResp.RetryAfterSeconds
			}
		}
	}

	return 0
}

// drainAndClose reads remaining body bytes and closes, preventing connection leaks.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
