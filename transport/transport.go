// Package transport defines the contract implemented by every
// transport able to carry requests to the engine, together with the
// connection state machine and the reconnect scheduling they share.
package transport

import (
	"context"
	"time"

	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/log"
)

// State is the connection state of a transport
type State int

const (
	// StateDisconnected is the initial state and the only state from
	// which a connection or a reconnect can be started
	StateDisconnected State = iota

	// StateConnecting is the state while a connection is being
	// established
	StateConnecting

	// StateConnected is the state of a transport ready to send requests
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Transport is the capability used by the client to talk to the
// engine. Implementations only return errors of type *errors.Error
type Transport interface {
	// Name returns the name used to tag errors and results
	Name() string

	// Connect establishes the connection. It is a no-op if the
	// transport is already connecting or connected
	Connect(ctx context.Context) error

	// Disconnect releases all the resources held by the transport,
	// including pending reconnect timers. It is safe to call it
	// multiple times
	Disconnect()

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Request sends a request and waits for its response
	Request(ctx context.Context, req *engine.Request) (*engine.Result, error)

	// ReconnectAttempts returns the number of reconnect attempts since
	// the last successful connection
	ReconnectAttempts() int

	// ResetReconnectAttempts resets the reconnect counter so that
	// automatic reconnects can be attempted again
	ResetReconnectAttempts()
}

// Props are the properties shared by all transports
type Props struct {
	// Address of the engine. The scheme selects the transport
	Address string

	// Timeout for establishing a connection and for each request
	Timeout time.Duration

	// AutoReconnect enables automatic reconnects on connection loss
	AutoReconnect bool

	// MaxReconnectAttempts bounds the number of automatic reconnects
	MaxReconnectAttempts int

	// ReconnectDelay is the time waited before each reconnect attempt
	ReconnectDelay time.Duration

	// Verbose enables per request logging
	Verbose bool
}

// Log implementation of log.Loggable
func (p *Props) Log(fields log.Fields) {
	fields.Add("address", p.Address)
	fields.Add("timeout", p.Timeout.String())
	fields.Add("autoReconnect", p.AutoReconnect)
	fields.Add("maxReconnectAttempts", p.MaxReconnectAttempts)
	fields.Add("reconnectDelay", p.ReconnectDelay.String())
}
