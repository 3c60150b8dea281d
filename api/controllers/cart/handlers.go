// Package cart exposes the customer's cart over HTTP.
package cart

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/api/controllers/dto"
	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	cartsvc "github.com/merakilabs/marketplace-backend/internal/cart"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type addItemRequest struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type updateItemRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type removeResponse struct {
	LineID  uuid.UUID `json:"lineId"`
	Removed bool      `json:"removed"`
}

type updateResponse struct {
	Line    *dto.CartLine `json:"line,omitempty"`
	Removed bool          `json:"removed"`
}

// List returns every line in the caller's cart with the subtotal.
func List(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), caller.AccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewCart(result))
	}
}

// Add merges a product into the caller's cart.
func Add(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.Add(r.Context(), caller.AccountID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewCartLine(*line))
	}
}

// Update sets the quantity of one line. A quantity of zero or less removes it.
func Update(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Update(r.Context(), lineID, payload.Quantity, caller.AccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := updateResponse{Removed: result.Removed}
		if result.Line != nil {
			line := dto.NewCartLine(*result.Line)
			resp.Line = &line
		}
		responses.WriteSuccess(w, resp)
	}
}

// Remove deletes one line. Removing an absent line is not an error.
func Remove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		removed, err := svc.Remove(r.Context(), lineID, caller.AccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, removeResponse{LineID: lineID, Removed: removed})
	}
}
