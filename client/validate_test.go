package client

import (
	"strings"
	"testing"

	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/errors"
	"github.com/stretchr/testify/assert"
)

func newValidRequest() *engine.Request {
	fee := int64(5000)
	return &engine.Request{
		FeePayer:    "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		PriorityFee: &fee,
		Mode:        "rpc",
		Operations: []engine.Operation{{
			Kind:    engine.OperationRawTransaction,
			Data:    make([]byte, 500),
			Signers: []string{strings.Repeat("a", 32), strings.Repeat("b", 44)},
		}},
	}
}

func TestValidateAccepts(t *testing.T) {
	assert.Nil(t, Validate(newValidRequest()))
}

func TestValidateAcceptsEmptyOperations(t *testing.T) {
	req := newValidRequest()
	req.Operations = nil

	assert.Nil(t, Validate(req))
}

func TestValidateAcceptsZeroPriorityFee(t *testing.T) {
	req := newValidRequest()
	zero := int64(0)
	req.PriorityFee = &zero

	assert.Nil(t, Validate(req))
}

func TestValidateRejects(t *testing.T) {
	negative := int64(-1)

	for name, modify := range map[string]func(req *engine.Request) *engine.Request{
		"nil request":       func(req *engine.Request) *engine.Request { return nil },
		"missing fee payer": func(req *engine.Request) *engine.Request { req.FeePayer = ""; return req },
		"missing fee":       func(req *engine.Request) *engine.Request { req.PriorityFee = nil; return req },
		"negative fee":      func(req *engine.Request) *engine.Request { req.PriorityFee = &negative; return req },
		"missing mode":      func(req *engine.Request) *engine.Request { req.Mode = ""; return req },
		"missing kind":      func(req *engine.Request) *engine.Request { req.Operations[0].Kind = ""; return req },
		"too small":         func(req *engine.Request) *engine.Request { req.Operations[0].Data = make([]byte, 99); return req },
		"too large":         func(req *engine.Request) *engine.Request { req.Operations[0].Data = make([]byte, 1233); return req },
		"short signer":      func(req *engine.Request) *engine.Request { req.Operations[0].Signers = []string{"short"}; return req },
		"long signer":       func(req *engine.Request) *engine.Request { req.Operations[0].Signers = []string{strings.Repeat("c", 45)}; return req },
		"empty signer":      func(req *engine.Request) *engine.Request { req.Operations[0].Signers = []string{""}; return req },
		"second op no kind": func(req *engine.Request) *engine.Request { req.Operations = append(req.Operations, engine.Operation{Data: []byte{1}}); return req },
	} {
		err := Validate(modify(newValidRequest()))

		e, ok := errors.As(err)
		assert.True(t, ok, name)
		assert.Equal(t, errors.KindInvalidRequest, e.Kind, name)
		assert.Equal(t, Name, e.Transport, name)
		assert.False(t, e.Retryable(), name)
	}
}

func TestValidateWindowBoundaries(t *testing.T) {
	for size, valid := range map[int]bool{
		50:   false,
		99:   false,
		100:  true,
		500:  true,
		1232: true,
		1233: false,
		1600: false,
	} {
		req := newValidRequest()
		req.Operations[0].Data = make([]byte, size)

		assert.Equal(t, valid, Validate(req) == nil, size)
	}
}

func TestValidateOtherKindsSkipWindow(t *testing.T) {
	req := newValidRequest()
	req.Operations = []engine.Operation{{
		Kind:    engine.OperationTransfer,
		Data:    make([]byte, 10),
		Signers: []string{"x"},
	}}

	assert.Nil(t, Validate(req))
}
