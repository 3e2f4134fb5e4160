package client

import (
	"github.com/oasislabs/engine-client/engine"
	"github.com/oasislabs/engine-client/errors"
)

const (
	// MinSignerLength and MaxSignerLength bound the length of the
	// identifiers of additional signers
	MinSignerLength = 32
	MaxSignerLength = 44
)

// Validate checks that the request is well formed. It does not
// perform any I/O and only returns errors of kind invalid-request
func Validate(req *engine.Request) error {
	if req == nil {
		return invalidRequest("request is required")
	}

	if len(req.FeePayer) == 0 {
		return invalidRequest("feePayer is required")
	}

	if req.PriorityFee == nil {
		return invalidRequest("priorityFee is required")
	}

	if *req.PriorityFee < 0 {
		return invalidRequest("priorityFee must not be negative, got %d", *req.PriorityFee)
	}

	if len(req.Mode) == 0 {
		return invalidRequest("mode is required")
	}

	for i := range req.Operations {
		if err := validateOperation(i, &req.Operations[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateOperation(i int, op *engine.Operation) error {
	if len(op.Kind) == 0 {
		return invalidRequest("operation %d does not declare its type", i)
	}

	if op.Kind != engine.OperationRawTransaction {
		return nil
	}

	if len(op.Data) < engine.MinRawTransactionSize {
		return invalidRequest("operation %d raw transaction has %d bytes, minimum is %d",
			i, len(op.Data), engine.MinRawTransactionSize)
	}

	if len(op.Data) > engine.MaxRawTransactionSize {
		return invalidRequest("operation %d raw transaction has %d bytes, maximum is %d",
			i, len(op.Data), engine.MaxRawTransactionSize)
	}

	for j, signer := range op.Signers {
		if len(signer) < MinSignerLength || len(signer) > MaxSignerLength {
			return invalidRequest("operation %d signer %d must have between %d and %d characters",
				i, j, MinSignerLength, MaxSignerLength)
		}
	}

	return nil
}

func invalidRequest(format string, args ...interface{}) error {
	return errors.Newf(errors.KindInvalidRequest, Name, format, args...)
}
