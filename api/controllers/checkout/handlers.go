// Package checkout turns selected cart lines into orders over HTTP.
package checkout

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/api/controllers/dto"
	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	checkoutsvc "github.com/merakilabs/marketplace-backend/internal/checkout"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type checkoutRequest struct {
	CartLineIDs []uuid.UUID `json:"cartLineIds" validate:"required,min=1,dive,required"`
}

// Checkout creates one buy order from the selected cart lines and removes
// them from the cart.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Checkout(r.Context(), caller.AccountID, payload.CartLineIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewOrder(order))
	}
}
