package auth

import "context"

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated identity to the context.
func ContextWithPrincipal(ctx context.Context, principal Identity) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated identity from the context.
func PrincipalFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}
