package session

import "context"

type usernameCtxKey struct{}

// WithUsername stores the authenticated username in the request context.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameCtxKey{}, username)
}

// UsernameFromContext returns the authenticated username, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameCtxKey{}).(string)
	return username, ok
}
