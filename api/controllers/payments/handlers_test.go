package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/internal/reconciliation"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

type stubSessions struct {
	session *models.PaymentSession
}

func (s *stubSessions) FindByID(context.Context, uuid.UUID) (*models.PaymentSession, error) {
	if s.session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")
	}
	return s.session, nil
}

type stubReconciler struct {
	successes int
	failures  int
	err       error
}

func (s *stubReconciler) OnSuccess(context.Context, reconciliation.Notification) (*reconciliation.Result, error) {
	s.successes++
	return &reconciliation.Result{}, s.err
}

func (s *stubReconciler) OnFailure(context.Context, reconciliation.Notification) (*reconciliation.Result, error) {
	s.failures++
	return &reconciliation.Result{}, s.err
}

func callReturnURL(handler http.HandlerFunc, outcome string, txnID uuid.UUID, p *middleware.Principal) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get("/api/v1/payments/"+outcome+"/{transactionId}", handler)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+outcome+"/"+txnID.String(), nil)
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReturnURLsReachReconciler(t *testing.T) {
	payer := uuid.New()
	txnID := uuid.New()
	sessions := &stubSessions{session: &models.PaymentSession{ID: txnID, OrderID: uuid.New(), PayerAccountID: payer}}
	svc := &stubReconciler{}
	p := &middleware.Principal{AccountID: payer, Role: enums.AccountRoleCustomer}

	if rec := callReturnURL(Success(svc, sessions, nil), "success", txnID, p); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := callReturnURL(Failed(svc, sessions, nil), "failed", txnID, p); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.successes != 1 || svc.failures != 1 {
		t.Fatalf("unexpected calls: %+v", svc)
	}
}

func TestReturnURLRejectsOtherAccounts(t *testing.T) {
	txnID := uuid.New()
	sessions := &stubSessions{session: &models.PaymentSession{ID: txnID, PayerAccountID: uuid.New()}}
	svc := &stubReconciler{}
	p := &middleware.Principal{AccountID: uuid.New(), Role: enums.AccountRoleCustomer}

	if rec := callReturnURL(Success(svc, sessions, nil), "success", txnID, p); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
	if svc.successes != 0 {
		t.Fatalf("reconciler must not run for another account")
	}

	admin := &middleware.Principal{AccountID: uuid.New(), Role: enums.AccountRoleAdmin}
	if rec := callReturnURL(Success(svc, sessions, nil), "success", txnID, admin); rec.Code != http.StatusOK {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}
}

func TestReturnURLUnknownTransaction(t *testing.T) {
	p := &middleware.Principal{AccountID: uuid.New(), Role: enums.AccountRoleCustomer}
	if rec := callReturnURL(Success(&stubReconciler{}, &stubSessions{}, nil), "success", uuid.New(), p); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestReturnURLDuplicateIsConflict(t *testing.T) {
	payer := uuid.New()
	txnID := uuid.New()
	sessions := &stubSessions{session: &models.PaymentSession{ID: txnID, PayerAccountID: payer}}
	svc := &stubReconciler{err: pkgerrors.New(pkgerrors.CodeDuplicateNotification, "already settled")}
	p := &middleware.Principal{AccountID: payer, Role: enums.AccountRoleCustomer}

	if rec := callReturnURL(Success(svc, sessions, nil), "success", txnID, p); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestNilReconcilerIsInternal(t *testing.T) {
	p := &middleware.Principal{AccountID: uuid.New(), Role: enums.AccountRoleCustomer}
	if rec := callReturnURL(Success(nil, &stubSessions{}, nil), "success", uuid.New(), p); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
