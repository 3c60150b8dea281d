package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
)

// PaymentLinkParams describes a quick-pay link for a single order amount.
type PaymentLinkParams struct {
	IdempotencyKey string
	Name           string
	Note           string
	AmountMinor    int64
	Currency       string
	RedirectURL    string
}

func (p PaymentLinkParams) toSquareRequest(idempotencyKey, locationID string) *checkout.CreatePaymentLinkRequest {
	req := &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: stringPtr(idempotencyKey),
		QuickPay: &sq.QuickPay{
			Name:       p.Name,
			PriceMoney: moneyPtr(p.AmountMinor, p.Currency),
			LocationID: locationID,
		},
	}
	if note := strings.TrimSpace(p.Note); note != "" {
		req.PaymentNote = stringPtr(note)
		req.Description = stringPtr(note)
	}
	if redirect := strings.TrimSpace(p.RedirectURL); redirect != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: stringPtr(redirect)}
	}
	return req
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
