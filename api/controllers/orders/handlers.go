// Package orders exposes order reads and lifecycle moves over HTTP.
package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/api/controllers/dto"
	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	internalorders "github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type moveFunc func(svc internalorders.Service, r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)

// List returns the caller's orders. ?party=buyer|seller narrows the side.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		party, ok := internalorders.ParseParty(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("party"))))
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "party must be buyer or seller").
				WithDetails(map[string]any{"field": "party"}))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForAccount(r.Context(), caller.AccountID, party, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrderPage(page))
	}
}

// Detail returns one order to its buyer, one of its sellers, or an admin.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !caller.IsAdmin() && order.BuyerAccountID != caller.AccountID && !internalorders.IsSeller(order, caller.AccountID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller"))
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

// Deliver moves a paid order to delivering.
func Deliver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return move(svc, logg, func(svc internalorders.Service, r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.AdvanceToDelivering(r.Context(), orderID, actor)
	})
}

// Complete moves a delivering order to completed.
func Complete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return move(svc, logg, func(svc internalorders.Service, r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.FinishDelivering(r.Context(), orderID, actor)
	})
}

// Cancel cancels an order that has not been paid yet.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return move(svc, logg, func(svc internalorders.Service, r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		return svc.Cancel(r.Context(), orderID, strings.TrimSpace(payload.Reason), actor)
	})
}

func move(svc internalorders.Service, logg *logger.Logger, fn moveFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
			r = r.WithContext(ctx)
		}

		order, err := fn(svc, r, orderID, internalorders.Actor{AccountID: caller.AccountID, Role: caller.Role})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}
