package client

import (
	"time"

	"github.com/oasislabs/engine-client/codec"
	"github.com/oasislabs/engine-client/config"
	"github.com/oasislabs/engine-client/log"
	"github.com/oasislabs/engine-client/transport/stream"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	cfgAddress              = "engine.address"
	cfgTimeout              = "engine.timeout_ms"
	cfgAutoReconnect        = "engine.auto_reconnect"
	cfgMaxReconnectAttempts = "engine.max_reconnect_attempts"
	cfgReconnectDelay       = "engine.reconnect_delay_ms"
	cfgVerbose              = "engine.verbose"
	cfgCredential           = "engine.credential"
	cfgFormat               = "engine.format"
	cfgCredentialHeader     = "engine.credential_header"
	cfgMaxResponseBytes     = "engine.max_response_bytes"
	cfgRateLimit            = "engine.rate_limit"
)

const (
	DefaultTimeout              = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
)

// Config is the configuration of a client. It is not modified
// once the client is created
type Config struct {
	// Address of the engine. The scheme selects the transport,
	// ipc, tcp, ws and wss use the socket transport and http and
	// https use the stream transport
	Address string

	// Timeout for connecting and for every request
	Timeout time.Duration

	// AutoReconnect enables automatic reconnects
	AutoReconnect bool

	// MaxReconnectAttempts bounds the automatic reconnects
	MaxReconnectAttempts int

	// ReconnectDelay is the delay before each reconnect attempt
	ReconnectDelay time.Duration

	// Verbose enables per request logging
	Verbose bool

	// Credential is the access credential for the stream transport
	Credential string

	// CredentialHeader is the header that carries the credential
	CredentialHeader string

	// Format used by the stream transport to encode requests
	Format codec.Format

	// MaxResponseBytes bounds response bodies of the stream transport
	MaxResponseBytes int64

	// RateLimit is the maximum number of requests per second. A
	// value of 0 disables rate limiting
	RateLimit float64
}

// NewConfig returns the default configuration for an address
func NewConfig(address string) Config {
	return Config{
		Address:              address,
		Timeout:              DefaultTimeout,
		AutoReconnect:        true,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       DefaultReconnectDelay,
		CredentialHeader:     stream.DefaultCredentialHeader,
		Format:               codec.FormatBinary,
		MaxResponseBytes:     stream.DefaultMaxResponseBytes,
	}
}

// withDefaults fills the values that are not set
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if len(c.CredentialHeader) == 0 {
		c.CredentialHeader = stream.DefaultCredentialHeader
	}
	if len(c.Format) == 0 {
		c.Format = codec.FormatBinary
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = stream.DefaultMaxResponseBytes
	}

	return c
}

func (c *Config) Log(fields log.Fields) {
	fields.Add(cfgAddress, c.Address)
	fields.Add(cfgTimeout, c.Timeout.Milliseconds())
	fields.Add(cfgAutoReconnect, c.AutoReconnect)
	fields.Add(cfgMaxReconnectAttempts, c.MaxReconnectAttempts)
	fields.Add(cfgReconnectDelay, c.ReconnectDelay.Milliseconds())
	fields.Add(cfgVerbose, c.Verbose)
	// do not log the credential itself
	fields.Add("engine.credential_set", len(c.Credential) > 0)
	fields.Add(cfgFormat, c.Format.String())
	fields.Add(cfgRateLimit, c.RateLimit)
}

func (c *Config) Configure(v *viper.Viper) error {
	c.Address = v.GetString(cfgAddress)
	if len(c.Address) == 0 {
		return config.ErrKeyNotSet{Key: cfgAddress}
	}

	timeout := v.GetInt64(cfgTimeout)
	if timeout <= 0 {
		return config.ErrInvalidValue{Key: cfgTimeout, InvalidValue: v.GetString(cfgTimeout)}
	}
	c.Timeout = time.Duration(timeout) * time.Millisecond

	c.AutoReconnect = v.GetBool(cfgAutoReconnect)

	c.MaxReconnectAttempts = v.GetInt(cfgMaxReconnectAttempts)
	if c.MaxReconnectAttempts < 0 {
		return config.ErrInvalidValue{
			Key:          cfgMaxReconnectAttempts,
			InvalidValue: v.GetString(cfgMaxReconnectAttempts),
		}
	}

	delay := v.GetInt64(cfgReconnectDelay)
	if delay <= 0 {
		return config.ErrInvalidValue{Key: cfgReconnectDelay, InvalidValue: v.GetString(cfgReconnectDelay)}
	}
	c.ReconnectDelay = time.Duration(delay) * time.Millisecond

	c.Verbose = v.GetBool(cfgVerbose)
	c.Credential = v.GetString(cfgCredential)
	c.CredentialHeader = v.GetString(cfgCredentialHeader)

	format, err := codec.ParseFormat(v.GetString(cfgFormat))
	if err != nil {
		return config.ErrInvalidValue{
			Key:          cfgFormat,
			InvalidValue: v.GetString(cfgFormat),
			Values:       []string{codec.FormatBinary.String(), codec.FormatText.String()},
		}
	}
	c.Format = format

	c.MaxResponseBytes = v.GetInt64(cfgMaxResponseBytes)
	if c.MaxResponseBytes <= 0 {
		return config.ErrInvalidValue{Key: cfgMaxResponseBytes, InvalidValue: v.GetString(cfgMaxResponseBytes)}
	}

	c.RateLimit = v.GetFloat64(cfgRateLimit)
	if c.RateLimit < 0 {
		return config.ErrInvalidValue{Key: cfgRateLimit, InvalidValue: v.GetString(cfgRateLimit)}
	}

	return nil
}

func (c *Config) Bind(v *viper.Viper, cmd *cobra.Command) error {
	cmd.PersistentFlags().String(cfgAddress, "",
		"address of the engine. The scheme selects the transport, "+
			"ipc, tcp, ws and wss use the socket transport and http, https use the stream transport.")
	cmd.PersistentFlags().Int64(cfgTimeout, DefaultTimeout.Milliseconds(),
		"timeout in milliseconds for connecting and for every request.")
	cmd.PersistentFlags().Bool(cfgAutoReconnect, true,
		"reconnect automatically when the connection to the engine is lost.")
	cmd.PersistentFlags().Int(cfgMaxReconnectAttempts, DefaultMaxReconnectAttempts,
		"maximum number of automatic reconnect attempts.")
	cmd.PersistentFlags().Int64(cfgReconnectDelay, DefaultReconnectDelay.Milliseconds(),
		"delay in milliseconds before each reconnect attempt, must be positive.")
	cmd.PersistentFlags().Bool(cfgVerbose, false,
		"log every request and response.")
	cmd.PersistentFlags().String(cfgCredential, "",
		"access credential, required for http and https addresses.")
	cmd.PersistentFlags().String(cfgFormat, codec.FormatBinary.String(),
		"serialization format for http and https addresses. "+
			"Options are "+codec.FormatBinary.String()+", "+codec.FormatText.String()+".")
	cmd.PersistentFlags().String(cfgCredentialHeader, stream.DefaultCredentialHeader,
		"header that carries the access credential.")
	cmd.PersistentFlags().Int64(cfgMaxResponseBytes, stream.DefaultMaxResponseBytes,
		"maximum size in bytes of a response body.")
	cmd.PersistentFlags().Float64(cfgRateLimit, 0,
		"maximum number of requests per second, 0 disables the limit.")

	return nil
}
