package correlation

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"
)

// HeaderName carries the correlation id on inbound and outbound HTTP calls.
const HeaderName = "X-Correlation-Id"

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// Inject copies the context correlation ID onto an outbound request header.
func Inject(ctx context.Context, header http.Header) {
	if header == nil {
		return
	}
	if cid := ExtractCorrelationID(ctx); cid != "" {
		header.Set(HeaderName, cid)
	}
}
