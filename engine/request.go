// Package engine defines the envelope exchanged with the execution
// engine. Transports treat requests as opaque payloads and only look at
// the declared Kind to route them.
package engine

// Kind is the logical category of a request
type Kind string

const (
	// KindExecute is the default kind, requests of this kind
	// carry operations the engine executes
	KindExecute Kind = "execute"

	// KindWallet requests manage the wallets held by the engine
	KindWallet Kind = "wallet"
)

// OperationKind is the declared type of a single operation
type OperationKind string

const (
	// OperationRawTransaction carries a serialized transaction built
	// outside of the client
	OperationRawTransaction OperationKind = "raw_transaction"

	OperationTransfer OperationKind = "transfer"
	OperationSwap     OperationKind = "swap"
)

const (
	// MinRawTransactionSize is the smallest raw transaction payload
	// accepted by the engine
	MinRawTransactionSize = 100

	// MaxRawTransactionSize is the largest raw transaction payload
	// accepted by the engine
	MaxRawTransactionSize = 1232
)

// Operation is a single operation in a possibly batched request
type Operation struct {
	// Kind is the declared type of the operation
	Kind OperationKind `codec:"type"`

	// Data is the opaque payload of the operation
	Data []byte `codec:"data,omitempty"`

	// Signers are the identifiers of additional signers that the
	// engine needs to involve
	Signers []string `codec:"signers,omitempty"`

	// Params are kind specific parameters passed as is to the engine
	Params map[string]interface{} `codec:"params,omitempty"`
}

// Request is the envelope sent to the engine
type Request struct {
	// Kind is used by transports to route the request
	Kind Kind `codec:"kind,omitempty"`

	// FeePayer is the identifier of the account paying the fees
	FeePayer string `codec:"feePayer"`

	// PriorityFee is the priority fee offered for the request. It
	// is a pointer so that a missing value can be told apart from 0
	PriorityFee *int64 `codec:"priorityFee"`

	// Mode selects how the engine submits the transaction
	Mode string `codec:"mode"`

	// Operations are the operations to execute
	Operations []Operation `codec:"operations"`
}

// RouteKind returns the kind used to route the request. Requests
// without a declared kind are execute requests
func (r *Request) RouteKind() Kind {
	if r == nil || len(r.Kind) == 0 {
		return KindExecute
	}

	return r.Kind
}
