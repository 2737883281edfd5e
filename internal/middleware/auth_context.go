package middleware

import (
	"context"
	"errors"

	"github.com/technosupport/ts-vms/internal/data"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// GetAuthContext retrieves the validated session's UserCtx from ctx.
func GetAuthContext(ctx context.Context) (*data.UserCtx, bool) {
	val, ok := ctx.Value(authContextKey).(*data.UserCtx)
	return val, ok
}

// WithAuthContext attaches uc to ctx (exported for handler tests that need
// to exercise a handler without going through the auth middleware).
func WithAuthContext(ctx context.Context, uc *data.UserCtx) context.Context {
	return context.WithValue(ctx, authContextKey, uc)
}

var errNoAuthContext = errors.New("no auth context found")

// RequireAuthContext is the handler-side helper every authenticated route
// calls first; it turns a missing context (a routing bug, since the
// session middleware always sets one before an authenticated handler
// runs) into a clear error rather than a nil-pointer panic.
func RequireAuthContext(ctx context.Context) (*data.UserCtx, error) {
	uc, ok := GetAuthContext(ctx)
	if !ok {
		return nil, errNoAuthContext
	}
	return uc, nil
}
