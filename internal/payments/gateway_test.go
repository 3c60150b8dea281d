package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/hostedpay"
	"github.com/merakilabs/marketplace-backend/pkg/square"
)

type recordingSquare struct {
	params square.PaymentLinkParams
}

func (r *recordingSquare) CreatePaymentLink(_ context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error) {
	r.params = params
	return &square.PaymentLink{ID: "sq-link", URL: "https://square.link/u/abc", OrderID: "sq-order"}, nil
}

type recordingHosted struct {
	req hostedpay.LinkRequest
}

func (r *recordingHosted) CreateLink(_ context.Context, req hostedpay.LinkRequest) (*hostedpay.Link, error) {
	r.req = req
	return &hostedpay.Link{ID: "hp-1", URL: "https://pay.example.com/hp-1"}, nil
}

func TestMinorUnits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		amount   string
		currency enums.Currency
		want     int64
		ok       bool
	}{
		{"12.34", enums.CurrencyUSD, 1234, true},
		{"0.5", enums.CurrencyUSD, 50, true},
		{"12000", enums.CurrencyVND, 12000, true},
		{"1.005", enums.CurrencyUSD, 0, false},
		{"10.5", enums.CurrencyVND, 0, false},
	}
	for _, tc := range tests {
		got, err := MinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		if !tc.ok {
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), tc.amount)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got, tc.amount)
	}
}

func TestReturnURL(t *testing.T) {
	t.Parallel()
	id := uuid.MustParse("7f1d2c6e-4b0b-4e5a-9a57-1f7b1d0c2a11")
	require.Equal(t,
		"https://shop.example.com/payments/7f1d2c6e-4b0b-4e5a-9a57-1f7b1d0c2a11/success",
		ReturnURL(" https://shop.example.com/payments/{transactionId}/success ", id))
	require.Equal(t, "https://shop.example.com/done", ReturnURL("https://shop.example.com/done", id))
}

func TestSquareGatewayUsesTransactionAsIdempotencyKey(t *testing.T) {
	t.Parallel()
	client := &recordingSquare{}
	gw := NewSquareGateway(client)
	txn := uuid.New()

	session, err := gw.CreateSession(context.Background(), SessionRequest{
		TransactionID: txn,
		OrderID:       uuid.New(),
		Amount:        decimal.RequireFromString("7.25"),
		Currency:      enums.CurrencyUSD,
		Description:   "Marketplace order",
		SuccessURL:    "https://shop.example.com/{transactionId}",
	})
	require.NoError(t, err)
	require.Equal(t, "sq-link", session.GatewayRef)
	require.Equal(t, txn.String(), client.params.IdempotencyKey)
	require.EqualValues(t, 725, client.params.AmountMinor)
	require.Equal(t, "https://shop.example.com/"+txn.String(), client.params.RedirectURL)
}

func TestHostedGatewayFormatsAmount(t *testing.T) {
	t.Parallel()
	client := &recordingHosted{}
	gw := NewHostedGateway(client)
	txn := uuid.New()

	_, err := gw.CreateSession(context.Background(), SessionRequest{
		TransactionID: txn,
		OrderID:       uuid.New(),
		Amount:        decimal.RequireFromString("7.5"),
		Currency:      enums.CurrencyUSD,
		SuccessURL:    "https://shop.example.com/{transactionId}/success",
		FailureURL:    "https://shop.example.com/{transactionId}/failed",
	})
	require.NoError(t, err)
	require.Equal(t, "7.50", client.req.Amount)
	require.Equal(t, txn.String(), client.req.TransactionID)
	require.Equal(t, "https://shop.example.com/"+txn.String()+"/failed", client.req.FailureURL)
}
