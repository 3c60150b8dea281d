package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/api/middleware"
	cartsvc "github.com/merakilabs/marketplace-backend/internal/cart"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

type stubCart struct {
	line    *models.CartLine
	removed bool
	err     error
	lastQty decimal.Decimal
}

func (s *stubCart) Add(_ context.Context, customerID, productID uuid.UUID, qty decimal.Decimal) (*models.CartLine, error) {
	s.lastQty = qty
	if s.err != nil {
		return nil, s.err
	}
	return &models.CartLine{ID: uuid.New(), CustomerID: customerID, ProductID: productID, Quantity: qty, UnitPriceSnapshot: decimal.NewFromInt(10)}, nil
}

func (s *stubCart) Update(_ context.Context, _ uuid.UUID, qty decimal.Decimal, _ uuid.UUID) (*cartsvc.UpdateResult, error) {
	s.lastQty = qty
	if s.err != nil {
		return nil, s.err
	}
	if !qty.IsPositive() {
		return &cartsvc.UpdateResult{Removed: true}, nil
	}
	return &cartsvc.UpdateResult{Line: s.line}, nil
}

func (s *stubCart) Remove(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return s.removed, s.err }

func (s *stubCart) List(_ context.Context, customerID uuid.UUID) (*cartsvc.Cart, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &cartsvc.Cart{CustomerID: customerID, Lines: []models.CartLine{*s.line}, Subtotal: s.line.LineTotal()}, nil
}

func request(handler http.HandlerFunc, method, pattern, path string, body []byte) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, handler)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req = req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{AccountID: uuid.New(), Role: enums.AccountRoleCustomer}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAddCreatesLine(t *testing.T) {
	svc := &stubCart{}
	body := []byte(`{"productId":"` + uuid.NewString() + `","quantity":"2.5"}`)
	rec := request(Add(svc, nil), http.MethodPost, "/api/v1/cart/items", "/api/v1/cart/items", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if !svc.lastQty.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected quantity %s", svc.lastQty)
	}
}

func TestAddRejectsMissingProduct(t *testing.T) {
	rec := request(Add(&stubCart{}, nil), http.MethodPost, "/api/v1/cart/items", "/api/v1/cart/items", []byte(`{"quantity":"1"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestUpdateToZeroReportsRemoval(t *testing.T) {
	svc := &stubCart{}
	path := "/api/v1/cart/items/" + uuid.NewString()
	rec := request(Update(svc, nil), http.MethodPatch, "/api/v1/cart/items/{lineId}", path, []byte(`{"quantity":"0"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data updateResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Removed || envelope.Data.Line != nil {
		t.Fatalf("expected removal, got %+v", envelope.Data)
	}
}

func TestUpdateForeignLineIsNotFound(t *testing.T) {
	svc := &stubCart{err: pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")}
	path := "/api/v1/cart/items/" + uuid.NewString()
	rec := request(Update(svc, nil), http.MethodPatch, "/api/v1/cart/items/{lineId}", path, []byte(`{"quantity":"3"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestRemoveAbsentLineSucceeds(t *testing.T) {
	svc := &stubCart{removed: false}
	path := "/api/v1/cart/items/" + uuid.NewString()
	rec := request(Remove(svc, nil), http.MethodDelete, "/api/v1/cart/items/{lineId}", path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data removeResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Removed {
		t.Fatalf("expected removed=false")
	}
}

func TestListReturnsSubtotal(t *testing.T) {
	line := &models.CartLine{ID: uuid.New(), ProductID: uuid.New(), Quantity: decimal.NewFromInt(3), UnitPriceSnapshot: decimal.NewFromInt(10)}
	rec := request(List(&stubCart{line: line}, nil), http.MethodGet, "/api/v1/cart", "/api/v1/cart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data struct {
			Subtotal decimal.Decimal `json:"subtotal"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Subtotal.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected subtotal %s", envelope.Data.Subtotal)
	}
}

func TestNilServiceIsInternal(t *testing.T) {
	rec := request(List(nil, nil), http.MethodGet, "/api/v1/cart", "/api/v1/cart", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
