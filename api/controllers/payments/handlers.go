// Package payments exposes payment links and gateway return URLs over HTTP.
package payments

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/api/controllers/dto"
	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	paymentsvc "github.com/merakilabs/marketplace-backend/internal/payments"
	"github.com/merakilabs/marketplace-backend/internal/reconciliation"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type sessionReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error)
}

type notifyFunc func(ctx context.Context, n reconciliation.Notification) (*reconciliation.Result, error)

// ReconciliationResponse reports what a gateway callback did.
type ReconciliationResponse struct {
	OrderID     uuid.UUID        `json:"orderId"`
	Order       *dto.Order       `json:"order,omitempty"`
	Transaction *dto.Transaction `json:"transaction,omitempty"`
}

// CreateLink opens a payment session for the caller on one of their orders.
func CreateLink(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
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

		link, err := svc.CreatePaymentLink(r.Context(), orderID, caller.AccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}

// Total returns the amount owed on an order.
func Total(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		if _, err := middleware.RequirePrincipal(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		total, err := svc.TotalMoney(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, total)
	}
}

// Success handles the gateway's success return URL for one transaction.
func Success(svc reconciliation.Service, sessions sessionReader, logg *logger.Logger) http.HandlerFunc {
	var notify notifyFunc
	if svc != nil {
		notify = svc.OnSuccess
	}
	return returnURL(notify, sessions, logg)
}

// Failed handles the gateway's failure return URL for one transaction.
func Failed(svc reconciliation.Service, sessions sessionReader, logg *logger.Logger) http.HandlerFunc {
	var notify notifyFunc
	if svc != nil {
		notify = svc.OnFailure
	}
	return returnURL(notify, sessions, logg)
}

func returnURL(notify notifyFunc, sessions sessionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notify == nil || sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txnID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithTransactionID(ctx, txnID.String())
		}

		session, err := sessions.FindByID(ctx, txnID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !caller.IsAdmin() && session.PayerAccountID != caller.AccountID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "transaction does not belong to caller"))
			return
		}

		result, err := notify(ctx, reconciliation.Notification{TransactionID: txnID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewReconciliationResponse(session.OrderID, result))
	}
}

// NewReconciliationResponse maps a reconciliation result for the wire.
func NewReconciliationResponse(orderID uuid.UUID, result *reconciliation.Result) ReconciliationResponse {
	resp := ReconciliationResponse{OrderID: orderID}
	if result == nil {
		return resp
	}
	if result.Order != nil {
		order := dto.NewOrder(result.Order)
		resp.Order = &order
	}
	if result.Transaction != nil {
		txn := dto.NewTransaction(result.Transaction)
		resp.Transaction = &txn
	}
	return resp
}
