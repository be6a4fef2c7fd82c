package common

import "context"

// Identity describes the caller of a request. It is populated by the bearer
// token middleware when authentication is enabled.
type Identity struct {
	Subject       string
	CorrelationID string
}

type contextKey int

const (
	identityKey contextKey = iota
)

// WithIdentity stores an Identity in the request context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the Identity from context, or nil if absent.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ResolveActor returns the authenticated subject, or "local" for
// unauthenticated and CLI callers. Ledger events are attributed to it.
func ResolveActor(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil && id.Subject != "" {
		return id.Subject
	}
	return "local"
}

// ResolveCorrelationID returns the request correlation id, or "".
func ResolveCorrelationID(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.CorrelationID
	}
	return ""
}
