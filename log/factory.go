package log

import (
	"io/ioutil"

	"github.com/sirupsen/logrus"
)

// New creates a new logger with the specified
// configuration
func New(config *Config) Logger {
	props := LogrusLoggerProperties{
		Level: logrus.InfoLevel,
	}

	switch config.Level {
	case "debug":
		props.Level = logrus.DebugLevel
	case "info":
		props.Level = logrus.InfoLevel
	case "warn":
		props.Level = logrus.WarnLevel
	case "error":
		props.Level = logrus.ErrorLevel
	default:
		props.Level = logrus.InfoLevel
	}

	return NewLogrus(props)
}

// NewDiscard creates a logger that drops every entry. It is the
// logger components fall back to when the caller does not provide one
func NewDiscard() Logger {
	return NewLogrus(LogrusLoggerProperties{
		Level:  logrus.PanicLevel,
		Output: ioutil.Discard,
	})
}
