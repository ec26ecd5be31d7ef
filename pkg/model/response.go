package model

// SubmitResponse is returned by the backend on accepted metric submissions.
type SubmitResponse struct {
	Status     string `json:"status,omitempty"`
	ReceivedAt int64  `json:"received_at,omitempty"`
}

// SubmitErrorResponse is returned on rejection (4xx errors).
type SubmitErrorResponse struct {
	Error             string   `json:"error,omitempty"`
	Errors            []string `json:"errors,omitempty"`
	RetryAfterSeconds *int     `json:"retry_after_seconds,omitempty"`
}
