package perm

import "context"

// identityContextKey is the private type for the identity context key.
type identityContextKey struct{}

// ContextWithIdentity returns a context carrying the requester identity.
// The identity is always threaded through the context explicitly; the
// engine never consults ambient state.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the requester identity from the context.
// The second return value is false when no identity was set.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(string)
	return identity, ok
}
