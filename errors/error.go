package errors

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/oasislabs/engine-client/log"
)

// Kind classifies an error into the closed set of failures the
// client can report. Callers are expected to switch on the kind
// rather than on the message
type Kind string

const (
	// KindNetwork is a failure of the underlying network while a
	// request was in flight
	KindNetwork Kind = "network"

	// KindTimeout is returned when no response arrived within the
	// configured timeout
	KindTimeout Kind = "timeout"

	// KindInvalidRequest is returned when the request or the client
	// configuration is rejected before any I/O takes place
	KindInvalidRequest Kind = "invalid-request"

	// KindExecutionFailed is returned when the engine processed the
	// request and reported a failure
	KindExecutionFailed Kind = "execution-failed"

	// KindSerialization refers to failures encoding a request or
	// decoding a response
	KindSerialization Kind = "serialization"

	// KindConnection is returned when a connection to the engine
	// could not be established or is not available
	KindConnection Kind = "connection"

	// KindUnauthorized is returned by the stream transport when the
	// engine rejects the access credential
	KindUnauthorized Kind = "unauthorized"

	// KindNotFound is returned by the stream transport when the
	// engine does not expose the requested endpoint
	KindNotFound Kind = "not-found"

	// KindServerError is returned by the stream transport for any
	// other error status
	KindServerError Kind = "server-error"

	// KindUnknown is the catch all kind for failures that could not
	// be classified
	KindUnknown Kind = "unknown"
)

var kindCodes = map[Kind]int{
	KindNetwork:         1001,
	KindTimeout:         1002,
	KindConnection:      1003,
	KindInvalidRequest:  2001,
	KindSerialization:   2002,
	KindExecutionFailed: 3001,
	KindUnauthorized:    4001,
	KindNotFound:        4004,
	KindServerError:     5000,
	KindUnknown:         9999,
}

var kindDescs = map[Kind]string{
	KindNetwork:         "Network failure while communicating with the engine.",
	KindTimeout:         "The engine did not respond within the configured timeout.",
	KindConnection:      "Connection to the engine is not available.",
	KindInvalidRequest:  "The request was rejected before being sent.",
	KindSerialization:   "Failed to serialize or deserialize a payload.",
	KindExecutionFailed: "The engine failed to execute the request.",
	KindUnauthorized:    "The engine rejected the access credential.",
	KindNotFound:        "The engine endpoint does not exist.",
	KindServerError:     "The engine returned an error status.",
	KindUnknown:         "Unknown error.",
}

// Code returns a numeric identifier for the kind
func (k Kind) Code() int {
	code, ok := kindCodes[k]
	if !ok {
		return kindCodes[KindUnknown]
	}
	return code
}

// Desc returns a human readable description of the kind
func (k Kind) Desc() string {
	desc, ok := kindDescs[k]
	if !ok {
		return kindDescs[KindUnknown]
	}
	return desc
}

// Retryable returns true for the kinds where sending the same request
// again may succeed
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout
}

func (k Kind) String() string {
	return string(k)
}

// Error is the only error type returned across the client's public
// surface. It is created at the point of failure and not mutated
// afterwards
type Error struct {
	// Kind is the classification of the error
	Kind Kind

	// Message is a human readable message describing the failure
	Message string

	// Transport is the name of the component that produced the error
	Transport string

	// Cause is the underlying failure, if any
	Cause error

	// StatusCode is the http status returned by the engine. It is
	// only set by the stream transport
	StatusCode int

	// Timestamp is the time at which the error was created
	Timestamp time.Time
}

// New creates a new instance of an error
func New(kind Kind, transport string, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Transport: transport,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// Newf creates a new instance of an error without cause
func Newf(kind Kind, transport string, format string, args ...interface{}) *Error {
	return New(kind, transport, fmt.Sprintf(format, args...), nil)
}

// Error is the implementation of error for Error
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%d] %s error from %s: %s",
			e.Kind.Code(), e.Kind, e.Transport, e.Message)
	}

	return fmt.Sprintf("[%d] %s error from %s: %s with cause %s",
		e.Kind.Code(), e.Kind, e.Transport, e.Message, e.Cause.Error())
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable returns true if the request that caused the error
// may succeed if it is sent again
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// Log implementation of log.Loggable
func (e *Error) Log(fields log.Fields) {
	fields.Add("err", e.Message)
	fields.Add("errorKind", e.Kind.String())
	fields.Add("errorCode", e.Kind.Code())
	fields.Add("transport", e.Transport)

	if e.StatusCode != 0 {
		fields.Add("statusCode", e.StatusCode)
	}

	if e.Cause != nil {
		fields.Add("cause", e.Cause.Error())
	}
}

// As returns the *Error in err's chain, if any
func As(err error) (*Error, bool) {
	var e *Error
	if stderr.As(err, &e) {
		return e, true
	}

	return nil, false
}

// KindOf returns the kind of the error. Errors that are not
// of type *Error are reported as KindUnknown
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	if e, ok := As(err); ok {
		return e.Kind
	}

	return KindUnknown
}

// IsRetryable returns true if err is an *Error with a retryable kind
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}

// Normalize makes sure that err is an *Error. Errors that already
// are of the right type are returned as they are, other errors are
// classified by inspecting the failure signal
func Normalize(transport string, err error) *Error {
	if err == nil {
		return nil
	}

	if e, ok := As(err); ok {
		return e
	}

	return New(Classify(err, KindUnknown), transport, err.Error(), err)
}

// Classify returns the kind that best describes an I/O failure.
// Network conditions are reported with the provided network kind
// since the transports do not agree on how those are surfaced
func Classify(err error, network Kind) Kind {
	if err == nil {
		return ""
	}

	if stderr.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if stderr.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if IsNetworkFailure(err) {
		return network
	}

	return KindUnknown
}

// IsNetworkFailure returns true if the error signals that the
// connection to the remote endpoint is broken or unreachable
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}

	if stderr.Is(err, io.EOF) ||
		stderr.Is(err, io.ErrUnexpectedEOF) ||
		stderr.Is(err, io.ErrClosedPipe) ||
		stderr.Is(err, syscall.ECONNREFUSED) ||
		stderr.Is(err, syscall.ECONNRESET) ||
		stderr.Is(err, syscall.EPIPE) ||
		stderr.Is(err, syscall.ENOENT) {
		return true
	}

	var opErr *net.OpError
	if stderr.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

var networkMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"use of closed network connection",
	"no such host",
	"network is unreachable",
	"no such file or directory",
}
