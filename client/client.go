// Package client implements the client used to execute requests on
// the engine. The client selects a transport from the configured
// address, validates requests before they are sent and keeps running
// statistics of the requests it executes.
package client

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/errors"
	"github.com/oasislabs/engine-client/log"
	"github.com/oasislabs/engine-client/metrics"
	"github.com/oasislabs/engine-client/stats"
	"github.com/oasislabs/engine-client/transport"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Name is used to tag errors raised by the client itself
const Name = "client"

const metricsNamespace = "engine_client"

// Statistics is a snapshot of the statistics of a client
type Statistics = stats.Snapshot

// Services are the services required by the client
type Services struct {
	Logger log.Logger

	// Registerer is used to register the request metrics. Metrics
	// are not collected if it is nil
	Registerer prometheus.Registerer
}

// Deps are the instantiated dependencies of a client
type Deps struct {
	Logger     log.Logger
	Transport  transport.Transport
	Registerer prometheus.Registerer
}

// Client executes requests on the engine. It is safe for
// concurrent use
type Client struct {
	config    Config
	transport transport.Transport
	logger    log.Logger
	record    *stats.Record
	metrics   *metrics.ServiceMetrics
	limiter   *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new client for the configured address. It
// fails if the address is not supported or if a stream address is
// configured without a credential. A failure to connect is logged
// and surfaces on the first request
func NewClient(ctx context.Context, services *Services, config *Config) (*Client, error) {
	cfg := config.withDefaults()

	logger := services.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}

	t, err := NewTransport(&cfg, logger)
	if err != nil {
		return nil, err
	}

	return NewClientWithDeps(ctx, &Deps{
		Logger:     logger,
		Transport:  t,
		Registerer: services.Registerer,
	}, &cfg)
}

// NewClientWithDeps creates a new client using the
// dependencies provided
func NewClientWithDeps(ctx context.Context, deps *Deps, config *Config) (*Client, error) {
	cfg := config.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}

	c := &Client{
		config:    cfg,
		transport: deps.Transport,
		logger:    logger.ForClass("client", "Client"),
		record: stats.NewRecord(
			errors.KindNetwork.String(),
			errors.KindTimeout.String(),
			errors.KindConnection.String(),
			errors.KindSerialization.String(),
			errors.KindExecutionFailed.String(),
			errors.KindUnauthorized.String(),
			errors.KindNotFound.String(),
			errors.KindServerError.String(),
		),
	}

	if deps.Registerer != nil {
		m, err := metrics.NewServiceMetrics(metricsNamespace, deps.Registerer)
		if err != nil {
			return nil, errors.New(errors.KindInvalidRequest, Name, "failed to register metrics", err)
		}
		c.metrics = m
	}

	if cfg.RateLimit > 0 {
		burst := int(math.Ceil(cfg.RateLimit))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Warn(ctx, "failed to connect to engine, the client starts disconnected", log.MapFields{
			"call_type": "NewClientConnectFailure",
		}, errors.Normalize(Name, err))
	}

	return c, nil
}

// Connect connects the transport. It is a no-op if the transport
// is already connected
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return errors.New(errors.KindConnection, Name, "client is closed", nil)
	}

	if err := c.transport.Connect(ctx); err != nil {
		c.syncConnected()
		return errors.Normalize(c.transport.Name(), err)
	}

	c.syncConnected()
	return nil
}

// Execute validates the request, sends it to the engine and waits
// for the result. The returned error is always an *errors.Error.
// Results that the engine reports as failed are returned without
// error and with Success set to false
func (c *Client) Execute(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	if len(log.GetRequestID(ctx)) == 0 {
		ctx = log.PutRequestID(ctx, uuid.New().String())
	}

	if err := Validate(req); err != nil {
		c.logger.Debug(ctx, "request rejected", log.MapFields{
			"call_type": "ExecuteValidationFailure",
		}, errors.Normalize(Name, err))
		return nil, err
	}

	if c.isClosed() {
		return nil, errors.New(errors.KindConnection, Name, "client is closed", nil)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New(errors.KindTimeout, Name, "request cancelled waiting for rate limit", err)
		}
	}

	if c.config.Verbose {
		c.logger.Debug(ctx, "executing request", log.MapFields{
			"call_type":  "ExecuteAttempt",
			"kind":       string(req.RouteKind()),
			"operations": len(req.Operations),
		})
	}

	c.record.Sent()
	start := time.Now()
	result, err := c.transport.Request(ctx, req)
	elapsed := time.Since(start)
	latency := float64(elapsed) / float64(time.Millisecond)

	c.syncConnected()

	if err != nil {
		e := errors.Normalize(c.transport.Name(), err)
		c.record.Failed(e.Kind.String(), latency)
		c.observe(metrics.StatusError, e.Kind.String(), elapsed)

		c.logger.Warn(ctx, "request failed", log.MapFields{
			"call_type": "ExecuteFailure",
			"latency":   latency,
		}, e)
		return nil, e
	}

	result.Transport = c.transport.Name()
	result.Latency = latency
	result.Normalize()

	if result.Success {
		c.record.Succeeded(latency)
		c.observe(metrics.StatusOK, "", elapsed)
	} else {
		c.record.Failed(errors.KindExecutionFailed.String(), latency)
		c.observe(metrics.StatusFailed, errors.KindExecutionFailed.String(), elapsed)
	}

	if c.config.Verbose {
		c.logger.Debug(ctx, "request executed", log.MapFields{
			"call_type": "ExecuteSuccess",
			"success":   result.Success,
			"latency":   latency,
		})
	}

	return result, nil
}

func (c *Client) observe(status, cause string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}

	c.metrics.ObserveRequest(c.transport.Name(), status, cause, elapsed.Seconds())
}

func (c *Client) syncConnected() {
	c.record.SetConnected(c.transport.IsConnected(), time.Now())
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Stats returns a snapshot of the statistics of the client
func (c *Client) Stats() Statistics {
	c.syncConnected()

	snapshot := c.record.Snapshot()
	snapshot.ReconnectAttempts = c.transport.ReconnectAttempts()
	return snapshot
}

// ResetStats clears the request statistics
func (c *Client) ResetStats() {
	c.record.Reset()
}

// IsConnected returns true if the transport is connected
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// ReconnectAttempts returns the reconnect attempts of the transport
func (c *Client) ReconnectAttempts() int {
	return c.transport.ReconnectAttempts()
}

// ResetReconnectAttempts allows the transport to attempt automatic
// reconnects again once the maximum has been reached
func (c *Client) ResetReconnectAttempts() {
	c.transport.ResetReconnectAttempts()
}

// TransportName returns the name of the selected transport
func (c *Client) TransportName() string {
	return c.transport.Name()
}

// Close disconnects the transport. It is safe to call it
// multiple times
func (c *Client) Close() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.transport.Disconnect()
	c.record.SetConnected(false, time.Time{})

	if !alreadyClosed {
		c.logger.Info(context.Background(), "client closed", log.MapFields{
			"call_type": "CloseSuccess",
		})
	}
}
