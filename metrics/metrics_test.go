package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/oasislabs/engine-client/config"
	"github.com/oasislabs/engine-client/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServiceMetricsObserveRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewServiceMetrics("engine_client", registry)
	assert.Nil(t, err)

	metrics.ObserveRequest("socket", StatusError, "invalid-request", 0.25)
	metrics.ObserveRequest("socket", StatusError, "invalid-request", 0.5)
	metrics.ObserveRequest("stream", StatusOK, "", 0.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		metrics.Requests.WithLabelValues("socket", StatusError, "invalid_request")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.Requests.WithLabelValues("stream", StatusOK, "")))
}

func TestServiceMetricsRequestCounterPadsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewServiceMetrics("engine_client", registry)
	assert.Nil(t, err)

	metrics.RequestCounter("socket").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.Requests.WithLabelValues("socket", "", "")))
}

func TestServiceMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewServiceMetrics("engine_client", registry)
	assert.Nil(t, err)

	_, err = NewServiceMetrics("engine_client", registry)
	assert.Error(t, err)
}

func TestNewStubPublisher(t *testing.T) {
	publisher, err := New(&Config{Mode: metricsModeNone}, prometheus.NewRegistry(), log.NewDiscard())
	assert.Nil(t, err)
	assert.Nil(t, publisher.Publish(context.Background()))
}

func TestNewUnsupportedMode(t *testing.T) {
	_, err := New(&Config{Mode: "pull"}, prometheus.NewRegistry(), log.NewDiscard())
	assert.Error(t, err)
}

func TestPushPublisher(t *testing.T) {
	var mu sync.Mutex
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	metrics, err := NewServiceMetrics("engine_client", registry)
	assert.Nil(t, err)
	metrics.ObserveRequest("stream", StatusOK, "", 0.1)

	publisher, err := New(&Config{
		Mode:              metricsModePush,
		PushAddr:          server.URL,
		PushJobName:       "engine-client",
		PushInstanceLabel: "test",
	}, registry, log.NewDiscard())
	assert.Nil(t, err)

	assert.Nil(t, publisher.Publish(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/engine-client"))
}

func TestPushPublisherFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	publisher, err := New(&Config{
		Mode:        metricsModePush,
		PushAddr:    server.URL,
		PushJobName: "engine-client",
	}, prometheus.NewRegistry(), log.NewDiscard())
	assert.Nil(t, err)

	assert.Error(t, publisher.Publish(context.Background()))
}

type metricsConfig struct {
	Metrics Config
}

func (c *metricsConfig) Binders() []config.Binder {
	return []config.Binder{&c.Metrics}
}

func TestConfigDefaults(t *testing.T) {
	c := &metricsConfig{}
	parser, err := config.Generate("test", c)
	assert.Nil(t, err)

	assert.Nil(t, parser.Parse([]string{}))
	assert.Equal(t, Config{Mode: metricsModeNone, PushJobName: defaultPushJobName}, c.Metrics)
}

func TestConfigPushRequiresAddress(t *testing.T) {
	c := &metricsConfig{}
	parser, err := config.Generate("test", c)
	assert.Nil(t, err)

	err = parser.Parse([]string{"--metrics.mode=push"})
	assert.Error(t, err)
}
