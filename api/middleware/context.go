package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
)

// Principal is the authenticated caller.
type Principal struct {
	AccountID uuid.UUID
	Email     string
	Role      enums.AccountRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == enums.AccountRoleAdmin
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	return p, ok && p.AccountID != uuid.Nil
}

func RoleFromContext(ctx context.Context) enums.AccountRole {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}

// RequirePrincipal returns the caller or an unauthorized error.
func RequirePrincipal(r *http.Request) (Principal, error) {
	if r == nil {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}
