package client

import (
	"fmt"
	"net/url"

	"github.com/oasislabs/engine-client/errors"
	"github.com/oasislabs/engine-client/log"
	"github.com/oasislabs/engine-client/transport"
	"github.com/oasislabs/engine-client/transport/socket"
	"github.com/oasislabs/engine-client/transport/stream"
)

// NewTransport creates the transport selected by the scheme of
// the configured address
func NewTransport(config *Config, logger log.Logger) (transport.Transport, error) {
	u, err := url.Parse(config.Address)
	if err != nil {
		return nil, errors.New(errors.KindInvalidRequest, Name,
			fmt.Sprintf("failed to parse address %q", config.Address), err)
	}

	props := transport.Props{
		Address:              config.Address,
		Timeout:              config.Timeout,
		AutoReconnect:        config.AutoReconnect,
		MaxReconnectAttempts: config.MaxReconnectAttempts,
		ReconnectDelay:       config.ReconnectDelay,
		Verbose:              config.Verbose,
	}

	switch u.Scheme {
	case "ipc", "tcp", "ws", "wss":
		t, err := socket.NewTransport(props, socket.Services{Logger: logger})
		if err != nil {
			return nil, err
		}
		return t, nil

	case "http", "https":
		if len(config.Credential) == 0 {
			return nil, errors.Newf(errors.KindInvalidRequest, Name,
				"a credential is required for %s addresses", u.Scheme)
		}

		t, err := stream.NewTransport(stream.Props{
			Props:            props,
			Credential:       config.Credential,
			CredentialHeader: config.CredentialHeader,
			Format:           config.Format,
			MaxResponseBytes: config.MaxResponseBytes,
		}, stream.Services{Logger: logger})
		if err != nil {
			return nil, err
		}
		return t, nil

	default:
		return nil, errors.Newf(errors.KindInvalidRequest, Name,
			"unsupported address scheme %q, accepted schemes are ipc, tcp, ws, wss, http, https", u.Scheme)
	}
}
