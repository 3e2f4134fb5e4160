package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock

	mu        sync.Mutex
	connected bool
	attempts  int
}

func (m *MockTransport) Name() string {
	return "mock"
}

func (m *MockTransport) Connect(ctx context.Context) error {
	args := m.Called(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if args.Error(0) == nil {
		m.connected = true
	}
	return args.Error(0)
}

func (m *MockTransport) Disconnect() {
	m.Called()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Request(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}

	result := *args.Get(0).(*engine.Result)
	return &result, nil
}

func (m *MockTransport) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *MockTransport) ResetReconnectAttempts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = 0
}

func newConnectedTransport() *MockTransport {
	t := &MockTransport{}
	t.On("Connect", mock.Anything).Return(nil)
	t.On("Disconnect").Return()
	return t
}

func newTestClient(t *testing.T, transport *MockTransport, config Config) *Client {
	if len(config.Address) == 0 {
		config.Address = "tcp://127.0.0.1:5555"
	}

	c, err := NewClientWithDeps(context.Background(), &Deps{Transport: transport}, &config)
	assert.Nil(t, err)
	return c
}

func TestNewClientWithDepsConnects(t *testing.T) {
	transport := newConnectedTransport()
	c := newTestClient(t, transport, Config{})

	assert.True(t, c.IsConnected())
	assert.True(t, c.Stats().Connected)
	assert.False(t, c.Stats().ConnectedAt.IsZero())
	transport.AssertNumberOfCalls(t, "Connect", 1)
}

func TestNewClientWithDepsConnectFailureIsNotFatal(t *testing.T) {
	transport := &MockTransport{}
	transport.On("Connect", mock.Anything).Return(
		errors.New(errors.KindConnection, "mock", "refused", nil))

	c := newTestClient(t, transport, Config{})

	assert.False(t, c.IsConnected())
	assert.False(t, c.Stats().Connected)
}

func TestExecuteValidationPrecedence(t *testing.T) {
	transport := newConnectedTransport()
	c := newTestClient(t, transport, Config{})

	req := newValidRequest()
	req.FeePayer = ""
	_, err := c.Execute(context.Background(), req)

	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
	transport.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
	assert.Equal(t, uint64(0), c.Stats().RequestsSent)
}

func TestExecuteByteWindow(t *testing.T) {
	transport := newConnectedTransport()
	transport.On("Request", mock.Anything, mock.Anything).Return(
		&engine.Result{Success: true, Signature: "sig"}, nil)
	c := newTestClient(t, transport, Config{})

	for _, size := range []int{50, 1600} {
		req := newValidRequest()
		req.Operations[0].Data = make([]byte, size)

		_, err := c.Execute(context.Background(), req)
		assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err), size)
	}
	transport.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)

	req := newValidRequest()
	req.Operations[0].Data = make([]byte, 500)
	result, err := c.Execute(context.Background(), req)

	assert.Nil(t, err)
	assert.True(t, result.Success)
	transport.AssertNumberOfCalls(t, "Request", 1)
}

func TestExecuteSuccessFillsResult(t *testing.T) {
	transport := newConnectedTransport()
	transport.On("Request", mock.Anything, mock.Anything).Return(
		&engine.Result{Success: true, Signature: "sig", Error: "stale"}, nil)
	c := newTestClient(t, transport, Config{})

	result, err := c.Execute(context.Background(), newValidRequest())

	assert.Nil(t, err)
	assert.Equal(t, "mock", result.Transport)
	assert.Equal(t, "sig", result.Signature)
	assert.Empty(t, result.Error)
	assert.True(t, result.Latency >= 0)
}

func TestExecuteStatistics(t *testing.T) {
	transport := newConnectedTransport()
	req := newValidRequest()
	failing := newValidRequest()
	failing.Mode = "jito"
	erroring := newValidRequest()
	erroring.Mode = "bundle"

	transport.On("Request", mock.Anything, req).Return(&engine.Result{Success: true, Signature: "sig"}, nil)
	transport.On("Request", mock.Anything, failing).Return(&engine.Result{Success: false, Error: "reverted"}, nil)
	transport.On("Request", mock.Anything, erroring).Return(nil,
		errors.New(errors.KindTimeout, "mock", "no response", nil))
	c := newTestClient(t, transport, Config{})

	_, err := c.Execute(context.Background(), req)
	assert.Nil(t, err)

	result, err := c.Execute(context.Background(), failing)
	assert.Nil(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "reverted", result.Error)

	_, err = c.Execute(context.Background(), erroring)
	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))

	stats := c.Stats()
	assert.Equal(t, uint64(3), stats.RequestsSent)
	assert.Equal(t, uint64(1), stats.RequestsSucceeded)
	assert.Equal(t, uint64(2), stats.RequestsFailed)
	assert.Equal(t, map[string]uint64{
		errors.KindTimeout.String():         1,
		errors.KindExecutionFailed.String(): 1,
	}, stats.Failures)

	c.ResetStats()
	stats = c.Stats()
	assert.Equal(t, uint64(0), stats.RequestsSent)
	assert.Equal(t, float64(0), stats.AverageLatency)
	assert.True(t, stats.Connected)
}

func TestExecuteRunningAverage(t *testing.T) {
	transport := newConnectedTransport()
	transport.On("Request", mock.Anything, mock.Anything).
		Return(&engine.Result{Success: true, Signature: "sig"}, nil).
		Run(func(args mock.Arguments) {
			time.Sleep(time.Millisecond)
		})
	c := newTestClient(t, transport, Config{})

	sum := 0.0
	n := 5
	for i := 0; i < n; i++ {
		result, err := c.Execute(context.Background(), newValidRequest())
		assert.Nil(t, err)
		sum += result.Latency
	}

	assert.InDelta(t, sum/float64(n), c.Stats().AverageLatency, 1e-9)
}

func TestExecuteNormalizesUntypedErrors(t *testing.T) {
	transport := newConnectedTransport()
	transport.On("Request", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)
	c := newTestClient(t, transport, Config{})

	_, err := c.Execute(context.Background(), newValidRequest())

	e, ok := errors.As(err)
	assert.True(t, ok)
	assert.Equal(t, errors.KindTimeout, e.Kind)
	assert.Equal(t, "mock", e.Transport)
	assert.True(t, e.Retryable())
}

func TestCloseIdempotent(t *testing.T) {
	transport := newConnectedTransport()
	c := newTestClient(t, transport, Config{})

	c.Close()
	c.Close()

	assert.False(t, c.IsConnected())
	assert.False(t, c.Stats().Connected)
	transport.AssertNumberOfCalls(t, "Disconnect", 2)
}

func TestExecuteAfterClose(t *testing.T) {
	transport := newConnectedTransport()
	c := newTestClient(t, transport, Config{})
	c.Close()

	_, err := c.Execute(context.Background(), newValidRequest())

	assert.Equal(t, errors.KindConnection, errors.KindOf(err))
	transport.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
	assert.Equal(t, errors.KindConnection, errors.KindOf(c.Connect(context.Background())))
}

func TestReconnectAttemptsDelegated(t *testing.T) {
	transport := newConnectedTransport()
	transport.attempts = 2
	c := newTestClient(t, transport, Config{})

	assert.Equal(t, 2, c.ReconnectAttempts())
	assert.Equal(t, 2, c.Stats().ReconnectAttempts)

	c.ResetReconnectAttempts()
	assert.Equal(t, 0, c.ReconnectAttempts())
}

func TestExecuteRateLimited(t *testing.T) {
	transport := newConnectedTransport()
	transport.On("Request", mock.Anything, mock.Anything).Return(
		&engine.Result{Success: true, Signature: "sig"}, nil)
	c := newTestClient(t, transport, Config{RateLimit: 0.5})

	_, err := c.Execute(context.Background(), newValidRequest())
	assert.Nil(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Execute(ctx, newValidRequest())

	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))
	transport.AssertNumberOfCalls(t, "Request", 1)
	assert.Equal(t, uint64(1), c.Stats().RequestsSent)
}

func TestExecuteMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	transport := newConnectedTransport()
	transport.On("Request", mock.Anything, mock.Anything).Return(nil,
		errors.New(errors.KindInvalidRequest, "mock", "rejected", nil))

	config := Config{Address: "tcp://127.0.0.1:5555"}
	c, err := NewClientWithDeps(context.Background(), &Deps{
		Transport:  transport,
		Registerer: registry,
	}, &config)
	assert.Nil(t, err)

	_, _ = c.Execute(context.Background(), newValidRequest())

	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.Requests.WithLabelValues("mock", "error", "invalid_request")))
}

func TestNewClientStreamRequiresCredential(t *testing.T) {
	config := NewConfig("http://localhost:3000")

	_, err := NewClient(context.Background(), &Services{}, &config)

	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
}

func TestNewClientSelectsStream(t *testing.T) {
	config := NewConfig("http://localhost:3000")
	config.Credential = "secret"

	c, err := NewClient(context.Background(), &Services{}, &config)
	assert.Nil(t, err)
	defer c.Close()

	assert.Equal(t, "stream", c.TransportName())
	assert.True(t, c.IsConnected())
}

func TestNewClientSelectsSocket(t *testing.T) {
	for _, address := range []string{
		"tcp://127.0.0.1:1",
		"ipc:///tmp/engine-client-test-missing.sock",
		"ws://127.0.0.1:1/engine",
	} {
		config := NewConfig(address)
		config.AutoReconnect = false
		config.Timeout = 100 * time.Millisecond

		c, err := NewClient(context.Background(), &Services{}, &config)
		assert.Nil(t, err, address)

		assert.Equal(t, "socket", c.TransportName(), address)
		assert.False(t, c.IsConnected(), address)
		c.Close()
	}
}

func TestNewClientUnsupportedAddress(t *testing.T) {
	for _, address := range []string{"ftp://localhost:21", "localhost:3000", "://bad"} {
		config := NewConfig(address)

		_, err := NewClient(context.Background(), &Services{}, &config)

		assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err), address)
	}
}
