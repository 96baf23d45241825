package middleware

import (
	"net/http"
	"strings"

	"github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
	"github.com/frahmantamala/fleet-recurring/pkg/logger"
)

const (
	HeaderFranchiseID = "X-Franchise-ID"
	HeaderScope       = "X-Scope"
	HeaderActorID     = "X-Actor-ID"

	systemScope = "system"
)

// ScopeContext resolves the access scope from the request headers. A franchise id
// selects a tenant scope; "X-Scope: system" selects the unscoped system scope.
// Requests carrying neither are rejected.
func ScopeContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, ok := scopeFromRequest(r)
		if !ok {
			writeAppError(w, internal.ErrMissingScope)
			return
		}

		ctx := internal.ContextWithScope(r.Context(), sc)
		ctx = logger.With(ctx, "scope", sc.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func scopeFromRequest(r *http.Request) (scope.Scope, bool) {
	actor := strings.TrimSpace(r.Header.Get(HeaderActorID))

	if ownerID := strings.TrimSpace(r.Header.Get(HeaderFranchiseID)); ownerID != "" {
		return scope.ForOwner(ownerID).WithActor(actor), true
	}
	if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderScope)), systemScope) {
		return scope.System().WithActor(actor), true
	}
	return scope.Scope{}, false
}
