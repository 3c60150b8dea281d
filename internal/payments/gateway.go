package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/pkg/config"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/hostedpay"
	"github.com/merakilabs/marketplace-backend/pkg/square"
)

// transactionPlaceholder is substituted in return URLs.
const transactionPlaceholder = "{transactionId}"

// SessionRequest is what a gateway needs to open a payment page.
type SessionRequest struct {
	TransactionID uuid.UUID
	OrderID       uuid.UUID
	PayerID       uuid.UUID
	Amount        decimal.Decimal
	Currency      enums.Currency
	Description   string
	SuccessURL    string
	FailureURL    string
}

// Session is the gateway handle for one payment attempt.
type Session struct {
	Link       string
	GatewayRef string
}

// Gateway opens payment sessions with an external provider.
type Gateway interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type squareLinkCreator interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
}

type hostedLinkCreator interface {
	CreateLink(ctx context.Context, req hostedpay.LinkRequest) (*hostedpay.Link, error)
}

// SquareGateway creates Square quick-pay links.
type SquareGateway struct {
	client squareLinkCreator
}

func NewSquareGateway(client squareLinkCreator) *SquareGateway {
	return &SquareGateway{client: client}
}

func (g *SquareGateway) Name() string { return config.PaymentProviderSquare }

func (g *SquareGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	minor, err := MinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	link, err := g.client.CreatePaymentLink(ctx, square.PaymentLinkParams{
		IdempotencyKey: req.TransactionID.String(),
		Name:           req.Description,
		Note:           fmt.Sprintf("order %s", req.OrderID),
		AmountMinor:    minor,
		Currency:       string(req.Currency),
		RedirectURL:    ReturnURL(req.SuccessURL, req.TransactionID),
	})
	if err != nil {
		return nil, err
	}
	return &Session{Link: link.URL, GatewayRef: link.ID}, nil
}

// HostedGateway creates links on a generic hosted payment page provider.
type HostedGateway struct {
	client hostedLinkCreator
}

func NewHostedGateway(client hostedLinkCreator) *HostedGateway {
	return &HostedGateway{client: client}
}

func (g *HostedGateway) Name() string { return config.PaymentProviderHostedPay }

func (g *HostedGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	link, err := g.client.CreateLink(ctx, hostedpay.LinkRequest{
		TransactionID: req.TransactionID.String(),
		Reference:     req.OrderID.String(),
		Amount:        req.Amount.StringFixed(req.Currency.MinorUnits()),
		Currency:      string(req.Currency),
		Description:   req.Description,
		SuccessURL:    ReturnURL(req.SuccessURL, req.TransactionID),
		FailureURL:    ReturnURL(req.FailureURL, req.TransactionID),
	})
	if err != nil {
		return nil, err
	}
	return &Session{Link: link.URL, GatewayRef: link.ID}, nil
}

// MinorUnits converts amount to the currency's smallest unit. Amounts with
// more precision than the currency allows are rejected.
func MinorUnits(amount decimal.Decimal, currency enums.Currency) (int64, error) {
	shifted := amount.Shift(currency.MinorUnits())
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount has more precision than the currency allows").
			WithDetails(map[string]any{"amount": amount.String(), "currency": currency})
	}
	return shifted.IntPart(), nil
}

// ReturnURL fills the transaction placeholder in a configured return URL.
func ReturnURL(template string, transactionID uuid.UUID) string {
	return strings.ReplaceAll(strings.TrimSpace(template), transactionPlaceholder, transactionID.String())
}
