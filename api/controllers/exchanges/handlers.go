// Package exchanges exposes the product exchange negotiation over HTTP.
package exchanges

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/api/controllers/dto"
	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	"github.com/merakilabs/marketplace-backend/internal/exchange"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type requestExchangeRequest struct {
	TargetProductID  uuid.UUID  `json:"targetProductId" validate:"required"`
	OfferedProductID *uuid.UUID `json:"offeredProductId,omitempty"`
}

type resolveFunc func(svc exchange.Service, r *http.Request, orderID uuid.UUID, email string) (*exchange.Result, error)

// Request opens an exchange negotiation with the target product's owner.
func Request(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload requestExchangeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RequestExchange(r.Context(), caller.AccountID, payload.TargetProductID, payload.OfferedProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewExchange(result))
	}
}

// Accept is called by the counterparty to agree to the exchange.
func Accept(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(svc, logg, func(svc exchange.Service, r *http.Request, orderID uuid.UUID, email string) (*exchange.Result, error) {
		return svc.Accept(r.Context(), orderID, email)
	})
}

// Refuse is called by the counterparty to decline the exchange.
func Refuse(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(svc, logg, func(svc exchange.Service, r *http.Request, orderID uuid.UUID, email string) (*exchange.Result, error) {
		return svc.Refuse(r.Context(), orderID, email)
	})
}

// Finalize returns the delivery order of an accepted exchange, creating it
// when it does not exist yet.
func Finalize(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateExchangeOrder(r.Context(), orderID, caller.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func resolve(svc exchange.Service, logg *logger.Logger, fn resolveFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := fn(svc, r, orderID, caller.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewExchange(result))
	}
}
