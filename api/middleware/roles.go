package middleware

import (
	"net/http"
	"slices"

	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

// RequireRole admits callers holding one of roles. It must run after Auth;
// an unauthenticated request is a 401, a wrong role a 403.
func RequireRole(logg *logger.Logger, roles ...enums.AccountRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := RequirePrincipal(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !slices.Contains(roles, caller.Role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "account role not permitted").
					WithDetails(map[string]any{"role": caller.Role}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
