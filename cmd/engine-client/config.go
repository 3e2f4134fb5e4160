package main

import (
	"github.com/oasislabs/engine-client/client"
	"github.com/oasislabs/engine-client/config"
	"github.com/oasislabs/engine-client/log"
	"github.com/oasislabs/engine-client/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the configuration of the command line client
type Config struct {
	ClientConfig  client.Config
	RequestConfig RequestConfig
	MetricsConfig metrics.Config
	LoggingConfig log.Config
}

func (c *Config) Binders() []config.Binder {
	return []config.Binder{
		&c.ClientConfig,
		&c.RequestConfig,
		&c.MetricsConfig,
		&c.LoggingConfig,
	}
}

func (c *Config) Log(fields log.Fields) {
	c.ClientConfig.Log(fields)
	c.RequestConfig.Log(fields)
	c.MetricsConfig.Log(fields)
	c.LoggingConfig.Log(fields)
}

// RequestConfig selects the request to execute
type RequestConfig struct {
	// File is the path to the JSON encoded request. The request is
	// read from the standard input if it is not set or set to -
	File string
}

func (c *RequestConfig) Log(fields log.Fields) {
	fields.Add("request.file", c.File)
}

func (c *RequestConfig) Configure(v *viper.Viper) error {
	c.File = v.GetString("request.file")
	return nil
}

func (c *RequestConfig) Bind(v *viper.Viper, cmd *cobra.Command) error {
	cmd.PersistentFlags().String("request.file", "-",
		"path to the JSON encoded request to execute, - reads it from the standard input.")
	return nil
}
