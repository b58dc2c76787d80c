package auth

import "context"

type ctxKey string

const principalKey ctxKey = "auth_principal"

// ContextWithPrincipal stores the resolved principal in the context.
func ContextWithPrincipal(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, principalKey, user)
}

// PrincipalFromContext extracts the authenticated principal from context.
func PrincipalFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(principalKey).(User)
	return user, ok
}
