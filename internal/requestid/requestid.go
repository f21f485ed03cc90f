package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header carries the request ID on inbound and outbound HTTP messages.
const Header = "X-Request-ID"

const maxLen = 128

type ctxKey struct{}

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// Accept returns id if it is safe to echo back and log, otherwise a fresh ID.
func Accept(id string) string {
	if id == "" || len(id) > maxLen {
		return New()
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return New()
		}
	}
	return id
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
