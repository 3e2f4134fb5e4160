package stats

import (
	"sync/atomic"
)

// Counter is used to count how many times an event
// occurs
type Counter struct {
	value uint64
}

// Incr increments the counter by one
func (c *Counter) Incr() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Value returns the current value of the counter
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.value)
}

// Reset sets the counter back to zero
func (c *Counter) Reset() {
	atomic.StoreUint64(&c.value, 0)
}

// CounterGroup implements a group of counters identified
// by name. All counters are allocated at creation time
type CounterGroup struct {
	group map[string]*Counter
}

// NewCounterGroup creates a new counter group. All counters
// are allocated at the creation time.
func NewCounterGroup(names ...string) *CounterGroup {
	m := make(map[string]*Counter)

	for _, name := range names {
		m[name] = &Counter{value: 0}
	}

	// this is the catch all counter for all the requests
	// to increment a counter that does not exist
	m["undefined"] = &Counter{value: 0}

	return &CounterGroup{
		group: m,
	}
}

// Get retrieves the counter from the group. If no counter
// is found associated to that specific name a catch all
// counter is returned
func (g *CounterGroup) Get(name string) *Counter {
	counter, ok := g.group[name]
	if !ok {
		counter = g.group["undefined"]
	}

	return counter
}

// Incr increments the required counter
func (g *CounterGroup) Incr(name string) uint64 {
	return g.Get(name).Incr()
}

// Reset resets every counter in the group
func (g *CounterGroup) Reset() {
	for _, counter := range g.group {
		counter.Reset()
	}
}

// Values returns the counters of the group that have a
// value different from zero
func (g *CounterGroup) Values() map[string]uint64 {
	values := make(map[string]uint64)

	for key, counter := range g.group {
		if value := counter.Value(); value > 0 {
			values[key] = value
		}
	}

	return values
}
