package internal

import (
	"context"

	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
)

type ctxKey string

const ContextScopeKey ctxKey = "scope"

// ScopeFromContext returns the access scope attached by the transport layer.
func ScopeFromContext(ctx context.Context) (scope.Scope, bool) {
	if ctx == nil {
		return scope.Scope{}, false
	}
	s, ok := ctx.Value(ContextScopeKey).(scope.Scope)
	return s, ok
}

func ContextWithScope(ctx context.Context, s scope.Scope) context.Context {
	return context.WithValue(ctx, ContextScopeKey, s)
}
