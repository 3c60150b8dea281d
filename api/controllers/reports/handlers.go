// Package reports exposes per-account order counts and earnings.
package reports

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/api/validators"
	"github.com/merakilabs/marketplace-backend/internal/reporting"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type countResponse struct {
	AccountID uuid.UUID          `json:"accountId"`
	Count     int64              `json:"count"`
	Status    *enums.OrderStatus `json:"status,omitempty"`
}

type earningsResponse struct {
	AccountID uuid.UUID       `json:"accountId"`
	Earnings  decimal.Decimal `json:"earnings"`
}

// MyCounts returns how many orders the caller bought, optionally by ?status=.
func MyCounts(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reporting service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseOrderStatusQuery(r, "status")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := countResponse{AccountID: caller.AccountID, Status: status}
		if status != nil {
			resp.Count, err = svc.CountForCustomerByStatus(r.Context(), caller.AccountID, *status)
		} else {
			resp.Count, err = svc.CountForCustomer(r.Context(), caller.AccountID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// MyEarnings returns the caller's settled sales total.
func MyEarnings(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reporting service unavailable"))
			return
		}
		caller, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		total, err := svc.TotalEarningsForAccount(r.Context(), caller.AccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, earningsResponse{AccountID: caller.AccountID, Earnings: total})
	}
}
