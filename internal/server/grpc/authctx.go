package grpcserver

import (
	"context"

	"github.com/and161185/benchboard/internal/idp"
)

type ctxKey string

const principalKey ctxKey = "bb.principal"

// WithPrincipal stores the verified identity-provider principal in context.
func WithPrincipal(ctx context.Context, p idp.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the principal stored by AssertionUnary.
func PrincipalFromCtx(ctx context.Context) (idp.Principal, bool) {
	p, ok := ctx.Value(principalKey).(idp.Principal)
	return p, ok
}
