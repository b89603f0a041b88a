package auth

import "context"

type contextKey string

const sessionContextKey contextKey = "session"

// SessionContext holds the validated session identity for a request.
type SessionContext struct {
	AccountID string
	Email     string
}

// WithSession adds the session identity to the context.
func WithSession(ctx context.Context, sc *SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey, sc)
}

// SessionFromContext retrieves the session identity from the context.
func SessionFromContext(ctx context.Context) (*SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey).(*SessionContext)
	return sc, ok
}
