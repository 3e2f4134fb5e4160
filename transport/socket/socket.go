// Package socket implements a transport over a single persistent,
// message framed connection. Requests carry a correlation id so that
// any number of requests can be in flight on the same connection.
package socket

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oasislabs/engine-client/codec"
	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/errors"
	"github.com/oasislabs/engine-client/log"
	"github.com/oasislabs/engine-client/transport"
)

// Name of the transport used to tag errors and results
const Name = "socket"

const defaultTimeout = 30 * time.Second

// frame is the unit written to the connection. Payload is the
// binary encoded request or result, and ID echoes the correlation id
type frame struct {
	ID      string `codec:"id"`
	Payload []byte `codec:"payload"`
}

type Services struct {
	Logger log.Logger
}

type Deps struct {
	Logger log.Logger
	Dialer Dialer
}

// Transport is the socket transport. It is safe for concurrent use
type Transport struct {
	mu          sync.Mutex
	state       transport.State
	epoch       uint64
	conn        FrameConn
	props       transport.Props
	url         *url.URL
	dialer      Dialer
	logger      log.Logger
	inflight    *inFlightRegistry
	reconnector *transport.Reconnector
}

// NewTransport creates a new socket transport for a tcp, ipc, ws or
// wss address. The transport starts disconnected
func NewTransport(props transport.Props, services Services) (*Transport, error) {
	u, err := parseAddress(props.Address)
	if err != nil {
		return nil, err
	}

	dialer, err := NewDialer(u, props.Timeout)
	if err != nil {
		return nil, errors.New(errors.KindInvalidRequest, Name, err.Error(), nil)
	}

	return NewTransportWithDeps(props, Deps{
		Logger: services.Logger,
		Dialer: dialer,
	})
}

// NewTransportWithDeps creates a new socket transport with the
// provided dependencies
func NewTransportWithDeps(props transport.Props, deps Deps) (*Transport, error) {
	u, err := parseAddress(props.Address)
	if err != nil {
		return nil, err
	}

	if props.Timeout <= 0 {
		props.Timeout = defaultTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}
	logger = logger.ForClass("socket", "Transport")

	t := &Transport{
		state:    transport.StateDisconnected,
		props:    props,
		url:      u,
		dialer:   deps.Dialer,
		logger:   logger,
		inflight: newInFlightRegistry(),
	}

	t.reconnector = transport.NewReconnector(transport.ReconnectorProps{
		MaxAttempts: props.MaxReconnectAttempts,
		Delay:       props.ReconnectDelay,
		Logger:      logger,
		Reconnect:   t.reconnect,
	})

	return t, nil
}

func parseAddress(address string) (*url.URL, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, errors.New(errors.KindInvalidRequest, Name,
			fmt.Sprintf("failed to parse address %q", address), err)
	}

	return u, nil
}

// Name implementation of transport.Transport
func (t *Transport) Name() string {
	return Name
}

// Connect implementation of transport.Transport
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != transport.StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = transport.StateConnecting
	epoch := t.epoch
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.props.Timeout)
	defer cancel()

	conn, err := t.dialer.Dial(ctx, t.url)

	t.mu.Lock()
	if err != nil {
		if t.epoch == epoch {
			t.state = transport.StateDisconnected
		}
		t.mu.Unlock()

		e := errors.New(errors.KindConnection, Name,
			fmt.Sprintf("failed to connect to %s", t.props.Address), err)
		t.logger.Warn(ctx, "connection attempt failed", log.MapFields{
			"call_type": "ConnectFailure",
		}, e)
		return e
	}

	// a Disconnect while dialing invalidates the attempt
	if t.epoch != epoch || t.state != transport.StateConnecting {
		t.mu.Unlock()
		_ = conn.Close()
		return errors.New(errors.KindConnection, Name,
			"transport disconnected while connecting", nil)
	}

	t.state = transport.StateConnected
	t.conn = conn
	t.mu.Unlock()

	t.reconnector.Reset()
	go t.readLoop(conn, epoch)

	t.logger.Info(ctx, "connected to engine", log.MapFields{
		"call_type": "ConnectSuccess",
		"address":   t.props.Address,
	})
	return nil
}

// Disconnect implementation of transport.Transport
func (t *Transport) Disconnect() {
	t.reconnector.Cancel()

	if t.teardown(errors.New(errors.KindConnection, Name, "transport disconnected", nil)) {
		t.logger.Info(context.Background(), "disconnected from engine", log.MapFields{
			"call_type": "DisconnectSuccess",
		})
	}
}

// teardown closes the current connection if any and fails all the
// pending requests. It returns true if a connection was closed
func (t *Transport) teardown(cause error) bool {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.state = transport.StateDisconnected
	t.epoch++
	t.inflight.FailAll(cause)
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		return true
	}

	return false
}

// handleLoss tears down the connection identified by epoch and
// schedules a reconnect. It is a no-op if that connection is
// already gone
func (t *Transport) handleLoss(ctx context.Context, epoch uint64, cause error) {
	t.mu.Lock()
	if t.epoch != epoch || t.state != transport.StateConnected {
		t.mu.Unlock()
		return
	}

	conn := t.conn
	t.conn = nil
	t.state = transport.StateDisconnected
	t.epoch++
	pending := t.inflight.FailAll(errors.New(errors.KindNetwork, Name, "connection lost", cause))
	t.mu.Unlock()

	_ = conn.Close()

	t.logger.Warn(ctx, "connection to engine lost", log.MapFields{
		"call_type": "ConnectionLost",
		"pending":   pending,
		"err":       cause.Error(),
	})

	if t.props.AutoReconnect {
		t.reconnector.Schedule()
	}
}

// reconnect only starts from the disconnected state. A connection that
// is up or still being dialed is left alone
func (t *Transport) reconnect(ctx context.Context) error {
	if t.State() != transport.StateDisconnected {
		return nil
	}

	return t.Connect(ctx)
}

func (t *Transport) readLoop(conn FrameConn, epoch uint64) {
	ctx := context.Background()

	for {
		p, err := conn.ReadFrame()
		if err != nil {
			t.handleLoss(ctx, epoch, err)
			return
		}

		var f frame
		if err := codec.Unmarshal(codec.FormatBinary, p, &f); err != nil {
			t.logger.Warn(ctx, "dropping malformed frame", log.MapFields{
				"call_type": "FrameDecodeFailure",
				"err":       err.Error(),
			})
			continue
		}

		if !t.inflight.Deliver(f.ID, response{payload: f.Payload}, time.Now()) {
			t.logger.Debug(ctx, "dropping response without waiter", log.MapFields{
				"call_type": "ResponseDropped",
				"id":        f.ID,
			})
		}
	}
}

// IsConnected implementation of transport.Transport
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state == transport.StateConnected
}

// State returns the current connection state
func (t *Transport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// ReconnectAttempts implementation of transport.Transport
func (t *Transport) ReconnectAttempts() int {
	return t.reconnector.Attempts()
}

// ResetReconnectAttempts implementation of transport.Transport
func (t *Transport) ResetReconnectAttempts() {
	t.reconnector.Reset()
}

// Request implementation of transport.Transport
func (t *Transport) Request(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	payload, err := codec.Marshal(codec.FormatBinary, req)
	if err != nil {
		return nil, errors.New(errors.KindSerialization, Name, "failed to encode request", err)
	}

	id := uuid.New().String()
	data, err := codec.Marshal(codec.FormatBinary, &frame{ID: id, Payload: payload})
	if err != nil {
		return nil, errors.New(errors.KindSerialization, Name, "failed to encode frame", err)
	}

	t.mu.Lock()
	if t.state != transport.StateConnected {
		state := t.state
		t.mu.Unlock()
		if t.props.AutoReconnect && state == transport.StateDisconnected {
			t.reconnector.Schedule()
		}
		return nil, errors.New(errors.KindConnection, Name, "transport is not connected", nil)
	}

	conn, epoch := t.conn, t.epoch
	deadline := time.Now().Add(t.props.Timeout)
	w := t.inflight.Register(id, deadline)
	t.mu.Unlock()

	if t.props.Verbose {
		t.logger.Debug(ctx, "sending request", log.MapFields{
			"call_type": "RequestAttempt",
			"id":        id,
			"size":      len(data),
		})
	}

	if err := conn.WriteFrame(data, deadline); err != nil {
		t.inflight.Claim(id)
		kind := errors.Classify(err, errors.KindNetwork)
		if kind == errors.KindUnknown {
			kind = errors.KindNetwork
		}
		t.handleLoss(ctx, epoch, err)
		return nil, errors.New(kind, Name, "failed to send request", err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var res response
	select {
	case res = <-w.C:
	case <-timer.C:
		if t.inflight.Claim(id) {
			e := errors.New(errors.KindTimeout, Name,
				fmt.Sprintf("no response within %s", t.props.Timeout), nil)
			t.handleLoss(ctx, epoch, e)
			return nil, e
		}
		res = <-w.C
	case <-ctx.Done():
		if t.inflight.Claim(id) {
			return nil, errors.New(errors.KindTimeout, Name, "request cancelled", ctx.Err())
		}
		res = <-w.C
	}

	if res.err != nil {
		return nil, res.err
	}

	var result engine.Result
	if err := codec.Unmarshal(codec.FormatBinary, res.payload, &result); err != nil {
		return nil, errors.New(errors.KindSerialization, Name, "failed to decode response", err)
	}

	result.Transport = Name
	result.Normalize()

	if t.props.Verbose {
		t.logger.Debug(ctx, "received response", log.MapFields{
			"call_type": "RequestSuccess",
			"id":        id,
			"success":   result.Success,
		})
	}

	return &result, nil
}
