package transport

import (
	"context"
	"sync"
	"time"

	"github.com/oasislabs/engine-client/log"
)

// ReconnectFunc performs a single reconnect attempt. The context is
// cancelled if the reconnector is cancelled while the attempt runs
type ReconnectFunc func(ctx context.Context) error

// ReconnectorProps are the properties to build a Reconnector
type ReconnectorProps struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      log.Logger
	Reconnect   ReconnectFunc
}

// Reconnector schedules reconnect attempts. It owns a single timer,
// so at most one attempt is pending or running at any time. Each
// scheduled attempt increments the attempt counter before it is
// armed, and a failed attempt is rescheduled while attempts remain
type Reconnector struct {
	mu         sync.Mutex
	logger     log.Logger
	reconnect  ReconnectFunc
	max        int
	delay      time.Duration
	attempts   int
	timer      *time.Timer
	pending    bool
	running    bool
	runningGen uint64
	generation uint64
	cancel     context.CancelFunc
}

// NewReconnector creates a new reconnector
func NewReconnector(props ReconnectorProps) *Reconnector {
	logger := props.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}

	return &Reconnector{
		logger:    logger,
		reconnect: props.Reconnect,
		max:       props.MaxAttempts,
		delay:     props.Delay,
	}
}

// Schedule arms a reconnect attempt. It is a no-op if an attempt is
// already pending or running. It returns false if no attempts remain
func (r *Reconnector) Schedule() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.schedule()
}

func (r *Reconnector) schedule() bool {
	if r.pending || r.isRunning() {
		return true
	}

	if r.attempts >= r.max {
		r.logger.Warn(context.Background(), "reconnect attempts exhausted", log.MapFields{
			"call_type":   "ReconnectExhausted",
			"attempts":    r.attempts,
			"maxAttempts": r.max,
		})
		return false
	}

	r.attempts++
	r.pending = true
	generation := r.generation
	attempt := r.attempts

	r.timer = time.AfterFunc(r.delay, func() {
		r.run(generation, attempt)
	})

	return true
}

func (r *Reconnector) run(generation uint64, attempt int) {
	r.mu.Lock()
	if generation != r.generation {
		r.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.pending = false
	r.running = true
	r.runningGen = generation
	r.cancel = cancel
	r.mu.Unlock()

	r.logger.Info(ctx, "attempting reconnect", log.MapFields{
		"call_type": "ReconnectAttempt",
		"attempt":   attempt,
	})

	err := r.reconnect(ctx)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runningGen == generation {
		r.running = false
		r.cancel = nil
	}

	if generation != r.generation {
		return
	}

	if err != nil {
		r.logger.Warn(ctx, "reconnect attempt failed", log.MapFields{
			"call_type": "ReconnectFailure",
			"attempt":   attempt,
			"err":       err.Error(),
		})
		r.schedule()
		return
	}

	r.logger.Info(ctx, "reconnect succeeded", log.MapFields{
		"call_type": "ReconnectSuccess",
		"attempt":   attempt,
	})
}

// Cancel stops a pending attempt and invalidates a running one so
// that it cannot reschedule itself
func (r *Reconnector) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.pending = false

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	if r.cancel != nil {
		r.cancel()
	}
}

// Reset sets the attempt counter back to zero
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = 0
}

// Attempts returns the number of attempts scheduled since the
// last reset
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.attempts
}

// Active returns true if an attempt is pending or running
func (r *Reconnector) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pending || r.isRunning()
}

// an attempt invalidated by Cancel may still be running but it
// does not prevent a new attempt from being scheduled
func (r *Reconnector) isRunning() bool {
	return r.running && r.runningGen == r.generation
}
