package api

import "context"

type ctxKey int

const ctxKeyPrincipal ctxKey = 0

// principal is the authenticated REST caller carried on a request's
// context by authMiddleware, consumed by requirePermission and by
// handlers that audit against a user id.
type principal struct {
	UserID   string
	Username string
	RoleIDs  []string
}

func withPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(principal)
	return p, ok
}
