package stats

import (
	"sync"
	"time"
)

// Snapshot is a point in time copy of a Record
type Snapshot struct {
	// RequestsSent is the number of requests handed to the transport
	RequestsSent uint64

	// RequestsSucceeded is the number of requests that the engine
	// reported as successful
	RequestsSucceeded uint64

	// RequestsFailed is the number of requests that failed, either
	// with an error or with a failed result
	RequestsFailed uint64

	// AverageLatency is the running average of the latency of all
	// completed requests in milliseconds
	AverageLatency float64

	// Failures counts the failed requests by cause
	Failures map[string]uint64

	// Connected is true if the transport was connected when the
	// snapshot was taken
	Connected bool

	// ConnectedAt is the time at which the connection was last
	// established
	ConnectedAt time.Time

	// ReconnectAttempts is the number of reconnect attempts done by
	// the transport since the last successful connection
	ReconnectAttempts int
}

// Record keeps the request statistics of a client. It is
// safe for concurrent use
type Record struct {
	mu          sync.Mutex
	sent        Counter
	succeeded   Counter
	failed      Counter
	failures    *CounterGroup
	latency     RunningAverage
	connected   bool
	connectedAt time.Time
}

// NewRecord creates a new record. causes are the names of the
// failure causes that are tracked separately
func NewRecord(causes ...string) *Record {
	return &Record{failures: NewCounterGroup(causes...)}
}

// Sent records that a request has been handed to the transport
func (r *Record) Sent() {
	r.sent.Incr()
}

// Succeeded records a request that completed successfully
func (r *Record) Succeeded(latency float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.succeeded.Incr()
	r.updateLatency(latency)
}

// Failed records a request that failed with the provided cause
func (r *Record) Failed(cause string, latency float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed.Incr()
	r.failures.Incr(cause)
	r.updateLatency(latency)
}

func (r *Record) updateLatency(latency float64) {
	n := r.succeeded.Value() + r.failed.Value()
	r.latency.Update(latency, n)
}

// SetConnected updates the connection flag. The connection time is
// only updated on a transition from disconnected to connected
func (r *Record) SetConnected(connected bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if connected && !r.connected {
		r.connectedAt = at
	}
	r.connected = connected
}

// Snapshot returns a copy of the current statistics
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		RequestsSent:      r.sent.Value(),
		RequestsSucceeded: r.succeeded.Value(),
		RequestsFailed:    r.failed.Value(),
		AverageLatency:    r.latency.Value(),
		Failures:          r.failures.Values(),
		Connected:         r.connected,
		ConnectedAt:       r.connectedAt,
	}
}

// Reset clears the request statistics. The connection flag
// is kept since it reflects the transport state
func (r *Record) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent.Reset()
	r.succeeded.Reset()
	r.failed.Reset()
	r.failures.Reset()
	r.latency.Reset()
}
