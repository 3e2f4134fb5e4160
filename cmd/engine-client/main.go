package main

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"os"

	"github.com/oasislabs/engine-client/client"
	"github.com/oasislabs/engine-client/codec"
	"github.com/oasislabs/engine-client/config"
	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/errors"
	"github.com/oasislabs/engine-client/log"
	"github.com/oasislabs/engine-client/metrics"
	"github.com/oasislabs/engine-client/rw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

const maxRequestBytes = 1 << 20

func readRequest(r io.Reader) (*engine.Request, error) {
	p, err := rw.ReadAllWithLimit(r, rw.ReadLimitProps{
		FailOnExceed: true,
		Limit:        maxRequestBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %s", err.Error())
	}

	var req engine.Request
	if err := codec.Unmarshal(codec.FormatText, p, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %s", err.Error())
	}

	return &req, nil
}

func openRequest(path string) (io.ReadCloser, error) {
	if len(path) == 0 || path == "-" {
		return os.Stdin, nil
	}

	return os.Open(path)
}

func statsFields(stats client.Statistics) log.MapFields {
	return log.MapFields{
		"call_type":         "ClientStats",
		"requestsSent":      stats.RequestsSent,
		"requestsSucceeded": stats.RequestsSucceeded,
		"requestsFailed":    stats.RequestsFailed,
		"averageLatencyMs":  stats.AverageLatency,
		"reconnectAttempts": stats.ReconnectAttempts,
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	var cfg Config
	parser, err := config.Generate("engine-client", &cfg)
	if err != nil {
		fmt.Println("ERROR: ", err)
		return 1
	}

	if err := parser.Parse(args); err != nil {
		if stderr.Is(err, pflag.ErrHelp) {
			_ = parser.Usage()
			return 0
		}

		fmt.Println("ERROR: ", err)
		_ = parser.Usage()
		return 1
	}

	if cfg.ClientConfig.Verbose {
		cfg.LoggingConfig.Level = "debug"
	}

	logger := log.New(&cfg.LoggingConfig)
	logger.Debug(ctx, "configuration parsed", &cfg)

	registry := prometheus.NewRegistry()
	publisher, err := metrics.New(&cfg.MetricsConfig, registry, logger)
	if err != nil {
		logger.Error(ctx, "failed to create metrics publisher", log.MapFields{
			"call_type": "MetricsFailure",
			"err":       err.Error(),
		})
		return 1
	}

	in, err := openRequest(cfg.RequestConfig.File)
	if err != nil {
		logger.Error(ctx, "failed to open request", log.MapFields{
			"call_type": "ReadRequestFailure",
			"err":       err.Error(),
		})
		return 1
	}
	req, err := readRequest(in)
	_ = in.Close()
	if err != nil {
		logger.Error(ctx, "failed to read request", log.MapFields{
			"call_type": "ReadRequestFailure",
			"err":       err.Error(),
		})
		return 1
	}

	c, err := client.NewClient(ctx, &client.Services{
		Logger:     logger,
		Registerer: registry,
	}, &cfg.ClientConfig)
	if err != nil {
		logger.Error(ctx, "failed to create client", log.MapFields{
			"call_type": "NewClientFailure",
		}, errors.Normalize(client.Name, err))
		return 1
	}
	defer c.Close()

	result, err := c.Execute(ctx, req)
	logger.Info(ctx, "client statistics", statsFields(c.Stats()))

	if err := publisher.Publish(ctx); err != nil {
		logger.Warn(ctx, "failed to publish metrics", log.MapFields{
			"call_type": "MetricsFailure",
		})
	}

	if err != nil {
		logger.Error(ctx, "request failed", log.MapFields{
			"call_type": "ExecuteFailure",
		}, errors.Normalize(client.Name, err))
		return 1
	}

	p, err := codec.Marshal(codec.FormatText, result)
	if err != nil {
		logger.Error(ctx, "failed to encode result", log.MapFields{
			"call_type": "EncodeResultFailure",
			"err":       err.Error(),
		})
		return 1
	}

	fmt.Fprintln(stdout, string(p))

	if !result.Success {
		return 2
	}

	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}
