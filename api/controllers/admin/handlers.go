// Package admin exposes back-office reads of orders, the ledger and counts.
package admin

import (
	"net/http"

	"github.com/merakilabs/marketplace-backend/api/controllers/dto"
	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	"github.com/merakilabs/marketplace-backend/internal/ledger"
	internalorders "github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/internal/reporting"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

// CountResponse is an order count under an optional filter.
type CountResponse struct {
	Count  int64              `json:"count"`
	Status *enums.OrderStatus `json:"status,omitempty"`
	Type   *enums.OrderType   `json:"type,omitempty"`
}

// Orders lists every order, optionally filtered by ?type=.
func Orders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderType, err := validators.ParseOrderTypeQuery(r, "type")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var page pagination.Page[models.Order]
		if orderType != nil {
			page, err = svc.ListByType(r.Context(), *orderType, params)
		} else {
			page, err = svc.ListAll(r.Context(), params)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrderPage(page))
	}
}

// Transactions pages through the whole ledger.
func Transactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.GetAll(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewTransactionPage(page))
	}
}

// Transaction returns one ledger row by its id.
func Transaction(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewTransaction(txn))
	}
}

// OrderTransactions returns every ledger row of one order.
func OrderTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.GetByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewTransactions(rows))
	}
}

// Counts returns the number of orders, filtered by ?status= or ?type=.
func Counts(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reporting service unavailable"))
			return
		}
		status, err := validators.ParseOrderStatusQuery(r, "status")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderType, err := validators.ParseOrderTypeQuery(r, "type")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := CountResponse{Status: status, Type: orderType}
		switch {
		case status != nil && orderType != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "filter by status or type, not both"))
			return
		case status != nil:
			resp.Count, err = svc.CountByStatus(r.Context(), *status)
		case orderType != nil:
			resp.Count, err = svc.CountByType(r.Context(), *orderType)
		default:
			resp.Count, err = svc.CountAll(r.Context())
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
