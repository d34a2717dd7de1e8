package core

import (
	"context"

	"github.com/google/uuid"
)

type callIDKey struct{}
type sessionIDKey struct{}

// WithCallID tags the context with a correlation id for one logical LLM call.
func WithCallID(ctx context.Context, callID string) context.Context {
	if ctx == nil || callID == "" {
		return ctx
	}
	return context.WithValue(ctx, callIDKey{}, callID)
}

// EnsureCallID returns ctx with a call id, generating one if none is set.
func EnsureCallID(ctx context.Context) (context.Context, string) {
	if id := CallIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCallID(ctx, id), id
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

func CallIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(callIDKey{}).(string); ok {
		return v
	}
	return ""
}

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return v
	}
	return ""
}
