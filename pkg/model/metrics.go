package model

// GaugeType is the series type for point-in-time values.
const GaugeType = "gauge"

// MetricsPayload is the body of one submission to the metrics backend.
type MetricsPayload struct {
	Series []Series `json:"series"`
}

// Series is a single named time series with its points and tags.
type Series struct {
	Metric string   `json:"metric"`
	Type   string   `json:"type"`
	Points []Point  `json:"points"`
	Tags   []string `json:"tags,omitempty"`
	Host   string   `json:"host,omitempty"`
}

// Point is a [unix seconds, value] pair. The timestamp is fractional
// seconds, matching the backend's wire format.
type Point [2]float64

// NewPoint builds a Point from a unix-seconds timestamp and a value.
func NewPoint(ts, value float64) Point {
	return Point{ts, value}
}

// Timestamp returns the point's unix-seconds timestamp.
func (p Point) Timestamp() float64 { return p[0] }

// Value returns the point's value.
func (p Point) Value() float64 { return p[1] }
