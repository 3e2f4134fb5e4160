package socket

import (
	"sync"
	"time"
)

type response struct {
	payload []byte
	err     error
}

type waiter struct {
	deadline time.Time
	C        chan response
}

// inFlightRegistry tracks the requests waiting for a response. An
// entry is removed exactly once, either by the reader delivering the
// response, by the waiter claiming it when its timer fires, or by a
// connection loss failing all waiters. Whoever removes the entry
// decides the outcome of the request.
//
// All methods are safe for concurrent access.
type inFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]*waiter
}

func newInFlightRegistry() *inFlightRegistry {
	return &inFlightRegistry{
		entries: make(map[string]*waiter),
	}
}

// Register adds a waiter for the request id. Responses received
// after the deadline are not delivered
func (r *inFlightRegistry) Register(id string, deadline time.Time) *waiter {
	w := &waiter{deadline: deadline, C: make(chan response, 1)}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = w
	return w
}

// Deliver hands the response to the waiter for id. It returns false
// if the id is unknown or the response arrived after the deadline, in
// which case the response must be dropped
func (r *inFlightRegistry) Deliver(id string, res response, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.entries[id]
	if !ok || !now.Before(w.deadline) {
		return false
	}

	delete(r.entries, id)
	w.C <- res
	return true
}

// Claim removes the entry for id on behalf of the waiter. It returns
// false if a response has already been handed to the waiter
func (r *inFlightRegistry) Claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}

	delete(r.entries, id)
	return true
}

// FailAll fails every pending waiter with err
func (r *inFlightRegistry) FailAll(err error) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	for id, w := range r.entries {
		w.C <- response{err: err}
		delete(r.entries, id)
	}

	return n
}

// Len returns the number of pending waiters
func (r *inFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
