package metrics

import (
	"context"

	"github.com/oasislabs/engine-client/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Publisher makes the metrics collected during a run available
// to Prometheus.
type Publisher interface {
	// Publish sends the current value of the metrics.
	Publish(ctx context.Context) error
}

// New constructs the publisher for the configured mode.
func New(config *Config, gatherer prometheus.Gatherer, logger log.Logger) (Publisher, error) {
	switch config.Mode {
	case "", metricsModeNone:
		return stubPublisher{}, nil
	case metricsModePush:
		return newPushPublisher(config, gatherer, logger), nil
	default:
		return nil, errors.Errorf("metrics: unsupported mode: '%v'", config.Mode)
	}
}

// A stub publisher drops the metrics.
type stubPublisher struct{}

// Publish implements Publisher for stubPublisher.
func (stubPublisher) Publish(ctx context.Context) error { return nil }

// A push publisher pushes the metrics to a Prometheus push gateway.
// The client is usually short lived so a single push at the end of a
// run replaces a periodic worker.
type pushPublisher struct {
	// The pusher which pushes updates to Prometheus.
	pusher *push.Pusher

	// A logger, for logging.
	logger log.Logger
}

func newPushPublisher(config *Config, gatherer prometheus.Gatherer, logger log.Logger) *pushPublisher {
	pusher := push.New(config.PushAddr, config.PushJobName).Gatherer(gatherer)
	if len(config.PushInstanceLabel) > 0 {
		pusher = pusher.Grouping("instance", config.PushInstanceLabel)
	}

	return &pushPublisher{
		pusher: pusher,
		logger: logger.ForClass("metrics", "pushPublisher"),
	}
}

// Publish implements Publisher for pushPublisher.
func (p *pushPublisher) Publish(ctx context.Context) error {
	if err := p.pusher.Push(); err != nil {
		p.logger.Error(ctx, "unable to push to prometheus", log.MapFields{
			"call_type": "PushMetricsFailure",
			"err":       err.Error(),
		})
		return errors.Wrap(err, "metrics: failed to push")
	}

	p.logger.Debug(ctx, "metrics pushed", log.MapFields{
		"call_type": "PushMetricsSuccess",
	})
	return nil
}
