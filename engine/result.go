package engine

// DefaultFailureMessage is the error reported for failed results
// that do not carry a message
const DefaultFailureMessage = "execution failed"

// Result is the outcome of a request as reported by the engine. A
// result carries either a signature or an error, never both
type Result struct {
	// Success is the semantic success flag set by the engine
	Success bool `codec:"success"`

	// Transport is the name of the transport that carried the request
	Transport string `codec:"transport"`

	// Signature of the submitted transaction, set on success
	Signature string `codec:"signature,omitempty"`

	// Error is the engine provided failure message
	Error string `codec:"error,omitempty"`

	// Latency of the request in milliseconds as measured by the client
	Latency float64 `codec:"latency,omitempty"`

	// Slot at which the transaction landed, if known
	Slot uint64 `codec:"slot,omitempty"`

	// Logs emitted by the engine while executing the request
	Logs []string `codec:"logs,omitempty"`
}

// Normalize enforces that only one of Signature and Error is set
// depending on the success flag
func (r *Result) Normalize() {
	if r.Success {
		r.Error = ""
		return
	}

	r.Signature = ""
	if len(r.Error) == 0 {
		r.Error = DefaultFailureMessage
	}
}
