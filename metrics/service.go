package metrics

import (
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Labels to use for partitioning requests.
	requestLabels = []string{"transport", "status", "cause"}

	// Labels to use for partitioning request latencies.
	requestLatencyLabels = []string{"transport"}
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusError  = "error"
)

// ServiceMetrics are the metrics kept for the requests sent to
// the engine.
type ServiceMetrics struct {
	// Counts of requests sent through each transport.
	Requests *prometheus.CounterVec

	// Latencies of requests for each transport in seconds.
	RequestLatencies *prometheus.SummaryVec
}

// NewServiceMetrics creates the request metrics and registers them
// with the provided registerer. Metric names are prefixed with the
// namespace.
func NewServiceMetrics(namespace string, registerer prometheus.Registerer) (*ServiceMetrics, error) {
	metrics := &ServiceMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_requests", namespace),
				Help: "How many requests were sent to the engine, partitioned by transport, status, and cause of failure.",
			},
			requestLabels,
		),
		RequestLatencies: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       fmt.Sprintf("%s_request_durations", namespace),
				Help:       "How long requests to the engine take, partitioned by transport.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			requestLatencyLabels,
		),
	}

	if err := registerer.Register(metrics.Requests); err != nil {
		return nil, err
	}
	if err := registerer.Register(metrics.RequestLatencies); err != nil {
		return nil, err
	}

	return metrics, nil
}

// RequestCounter returns the counter for the calling request.
// Provided labels should be transport, status, cause.
func (m *ServiceMetrics) RequestCounter(labels ...string) prometheus.Counter {
	if len(labels) > len(requestLabels) {
		labels = labels[:len(requestLabels)]
	}
	labels = append(labels, make([]string, len(requestLabels)-len(labels))...)
	return m.Requests.WithLabelValues(labels...)
}

// ObserveRequest records a completed request. The cause is
// normalized to snake case so that error kinds make valid label values
func (m *ServiceMetrics) ObserveRequest(transport, status, cause string, seconds float64) {
	m.RequestCounter(transport, status, strcase.ToSnake(cause)).Inc()
	m.RequestLatencies.WithLabelValues(transport).Observe(seconds)
}
