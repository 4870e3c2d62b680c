package shared

import (
	"context"
	"errors"
)

// Scope identifies the tenant and acting user for a ledger call. Every
// service operation receives it explicitly; there is no ambient tenant state.
type Scope struct {
	TenantID int64
	ActorID  int64
}

// Validate checks the scope carries a tenant.
func (s Scope) Validate() error {
	if s.TenantID == 0 {
		return errors.New("scope: tenant required")
	}
	return nil
}

type scopeContextKey struct{}

// ContextWithScope stores the scope in context for transport middleware.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope injected by the transport layer.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
