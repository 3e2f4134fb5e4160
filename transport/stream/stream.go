// Package stream implements a transport over pooled keep-alive http
// connections. Each request is a self contained exchange so the pool
// takes care of concurrent requests.
package stream

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oasislabs/engine-client/codec"
	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/errors"
	"github.com/oasislabs/engine-client/log"
	"github.com/oasislabs/engine-client/rw"
	"github.com/oasislabs/engine-client/transport"
)

// Name of the transport used to tag errors and results
const Name = "stream"

const (
	// ExecutePath is the endpoint for execute requests
	ExecutePath = "/api/execute"

	// WalletPath is the endpoint for wallet requests
	WalletPath = "/api/wallet"

	// DefaultCredentialHeader is the header that carries the
	// credential when none is configured
	DefaultCredentialHeader = "X-API-Key"

	// DefaultMaxResponseBytes bounds the size of response bodies
	DefaultMaxResponseBytes = 1 << 20

	defaultTimeout = 30 * time.Second
)

// HttpClient is the basic interface for the
// underlying http client used by the Transport
type HttpClient interface {
	Do(*http.Request) (*http.Response, error)
}

type idleCloser interface {
	CloseIdleConnections()
}

// Props are the properties of the stream transport
type Props struct {
	transport.Props

	// Credential is the access credential sent on every request
	Credential string

	// CredentialHeader is the header that carries the credential
	CredentialHeader string

	// Format is the format used to encode request bodies
	Format codec.Format

	// MaxResponseBytes bounds the size of response bodies
	MaxResponseBytes int64
}

type Services struct {
	Logger log.Logger
}

type Deps struct {
	Logger log.Logger
	Client HttpClient
}

// Transport is the stream transport. It is safe for concurrent use
type Transport struct {
	mu          sync.Mutex
	state       transport.State
	lost        bool
	props       Props
	base        *url.URL
	client      HttpClient
	logger      log.Logger
	reconnector *transport.Reconnector
}

// NewTransport creates a stream transport backed by a pooled
// keep-alive http client
func NewTransport(props Props, services Services) (*Transport, error) {
	timeout := props.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return NewTransportWithDeps(props, Deps{
		Logger: services.Logger,
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          64,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
	})
}

// NewTransportWithDeps creates a stream transport using the
// http client provided
func NewTransportWithDeps(props Props, deps Deps) (*Transport, error) {
	base, err := url.Parse(props.Address)
	if err != nil {
		return nil, errors.New(errors.KindInvalidRequest, Name,
			fmt.Sprintf("failed to parse address %q", props.Address), err)
	}

	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Newf(errors.KindInvalidRequest, Name,
			"unsupported stream scheme %q", base.Scheme)
	}

	if len(props.Credential) == 0 {
		return nil, errors.Newf(errors.KindInvalidRequest, Name,
			"a credential is required for %s addresses", base.Scheme)
	}

	if props.Timeout <= 0 {
		props.Timeout = defaultTimeout
	}
	if len(props.CredentialHeader) == 0 {
		props.CredentialHeader = DefaultCredentialHeader
	}
	if len(props.Format) == 0 {
		props.Format = codec.FormatBinary
	}
	if props.MaxResponseBytes <= 0 {
		props.MaxResponseBytes = DefaultMaxResponseBytes
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}
	logger = logger.ForClass("stream", "Transport")

	t := &Transport{
		state:  transport.StateDisconnected,
		props:  props,
		base:   base,
		client: deps.Client,
		logger: logger,
	}

	t.reconnector = transport.NewReconnector(transport.ReconnectorProps{
		MaxAttempts: props.MaxReconnectAttempts,
		Delay:       props.ReconnectDelay,
		Logger:      logger,
		Reconnect:   t.Connect,
	})

	return t, nil
}

// Name implementation of transport.Transport
func (t *Transport) Name() string {
	return Name
}

// Connect implementation of transport.Transport. There is no
// handshake, the pool dials connections on demand, so connecting
// only marks the transport as ready
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != transport.StateDisconnected {
		t.mu.Unlock()
		return nil
	}

	t.state = transport.StateConnected
	t.lost = false
	t.mu.Unlock()

	t.reconnector.Reset()
	t.logger.Debug(ctx, "stream transport ready", log.MapFields{
		"call_type": "ConnectSuccess",
		"address":   t.props.Address,
	})
	return nil
}

// Disconnect implementation of transport.Transport
func (t *Transport) Disconnect() {
	t.reconnector.Cancel()

	t.mu.Lock()
	t.state = transport.StateDisconnected
	t.lost = false
	t.mu.Unlock()

	if closer, ok := t.client.(idleCloser); ok {
		closer.CloseIdleConnections()
	}
}

// IsConnected implementation of transport.Transport
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state == transport.StateConnected
}

// ReconnectAttempts implementation of transport.Transport
func (t *Transport) ReconnectAttempts() int {
	return t.reconnector.Attempts()
}

// ResetReconnectAttempts implementation of transport.Transport
func (t *Transport) ResetReconnectAttempts() {
	t.reconnector.Reset()
}

// Endpoint returns the URL a request of the provided kind is sent to
func (t *Transport) Endpoint(kind engine.Kind) string {
	path := ExecutePath
	if kind == engine.KindWallet {
		path = WalletPath
	}

	u := *t.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// Request implementation of transport.Transport
func (t *Transport) Request(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	body, err := codec.Marshal(t.props.Format, req)
	if err != nil {
		return nil, errors.New(errors.KindSerialization, Name, "failed to encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.props.Timeout)
	defer cancel()

	endpoint := t.Endpoint(req.RouteKind())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.KindInvalidRequest, Name, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", t.props.Format.ContentType())
	httpReq.Header.Set("Accept", codec.ContentTypeMsgpack+", "+codec.ContentTypeJSON)
	httpReq.Header.Set(t.props.CredentialHeader, t.props.Credential)

	if t.props.Verbose {
		t.logger.Debug(ctx, "sending request", log.MapFields{
			"call_type": "RequestAttempt",
			"endpoint":  endpoint,
			"format":    t.props.Format.String(),
			"size":      len(body),
		})
	}

	res, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.ioError(ctx, "request to engine failed", err)
	}
	defer res.Body.Close()

	t.markReachable(ctx)

	p, err := rw.ReadAllWithLimit(res.Body, rw.ReadLimitProps{
		FailOnExceed: true,
		Limit:        t.props.MaxResponseBytes,
	})
	if err == rw.ErrLimitExceeded && !isSuccess(res.StatusCode) {
		return nil, t.statusError(res.StatusCode, t.props.Format, err, nil)
	} else if err == rw.ErrLimitExceeded {
		return nil, errors.New(errors.KindSerialization, Name,
			fmt.Sprintf("response exceeds %d bytes", t.props.MaxResponseBytes), err)
	} else if err != nil {
		return nil, t.ioError(ctx, "failed to read response", err)
	}

	format, formatErr := t.responseFormat(res.Header.Get("Content-Type"))

	if !isSuccess(res.StatusCode) {
		return nil, t.statusError(res.StatusCode, format, formatErr, p)
	}

	if formatErr != nil {
		return nil, errors.New(errors.KindSerialization, Name, "unsupported response content type", formatErr)
	}

	var result engine.Result
	if err := codec.Unmarshal(format, p, &result); err != nil {
		return nil, errors.New(errors.KindSerialization, Name, "failed to decode response", err)
	}

	result.Transport = Name
	result.Normalize()

	if t.props.Verbose {
		t.logger.Debug(ctx, "received response", log.MapFields{
			"call_type": "RequestSuccess",
			"status":    res.StatusCode,
			"format":    format.String(),
			"success":   result.Success,
		})
	}

	return &result, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// markReachable marks a transport that lost its connection as connected
// again once the engine answers
func (t *Transport) markReachable(ctx context.Context) {
	t.mu.Lock()
	lost := t.lost
	t.mu.Unlock()

	if lost {
		_ = t.Connect(ctx)
	}
}

// responseFormat selects the decoder from the content type declared
// by the response, which does not need to match the request format
func (t *Transport) responseFormat(contentType string) (codec.Format, error) {
	if len(contentType) == 0 {
		return t.props.Format, nil
	}

	return codec.FormatForContentType(contentType)
}

func (t *Transport) statusError(status int, format codec.Format, formatErr error, p []byte) error {
	var kind errors.Kind
	switch {
	case status == http.StatusUnauthorized:
		kind = errors.KindUnauthorized
	case status == http.StatusNotFound:
		kind = errors.KindNotFound
	default:
		kind = errors.KindServerError
	}

	message := fmt.Sprintf("engine responded with status %d %s", status, http.StatusText(status))
	if formatErr == nil && len(p) > 0 {
		var body map[string]interface{}
		if err := codec.Unmarshal(format, p, &body); err == nil {
			if msg, ok := body["error"].(string); ok && len(msg) > 0 {
				message = msg
			}
		}
	}

	e := errors.New(kind, Name, message, nil)
	e.StatusCode = status
	return e
}

// ioError classifies a failure of the http exchange. Failures that
// are not timeouts are connection class errors and mark the transport
// as disconnected until a readiness check or a later response succeeds
func (t *Transport) ioError(ctx context.Context, message string, err error) error {
	kind := errors.Classify(err, errors.KindConnection)
	if kind != errors.KindTimeout {
		kind = errors.KindConnection
	}

	e := errors.New(kind, Name, message, err)
	t.logger.Warn(ctx, message, log.MapFields{
		"call_type": "RequestFailure",
	}, e)

	if kind != errors.KindConnection {
		return e
	}

	t.mu.Lock()
	t.state = transport.StateDisconnected
	t.lost = true
	t.mu.Unlock()

	if t.props.AutoReconnect {
		t.reconnector.Schedule()
	}

	return e
}
