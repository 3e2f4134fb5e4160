package log

import (
	"context"
)

type ContextKey string

const (
	ContextKeyRequestID ContextKey = "logContextKeyRequestID"
)

// PutRequestID returns a context that carries the id of the request
// being processed so that every log line emitted on its behalf can
// be correlated
func PutRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestID returns the request id stored in the context or an
// empty string if there is none
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	if !ok {
		return ""
	}

	return requestID
}
