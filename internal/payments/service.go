package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/pkg/config"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Service generates payment requests. It never changes order state.
type Service interface {
	CreatePaymentLink(ctx context.Context, orderID, payerID uuid.UUID) (*Link, error)
	CreatePaymentLinkForEmail(ctx context.Context, orderID uuid.UUID, email string) (*Link, error)
	TotalMoney(ctx context.Context, orderID uuid.UUID) (*Total, error)
}

// Link is returned to the payer.
type Link struct {
	URL           string    `json:"link"`
	GatewayRef    string    `json:"gatewayRef"`
	TransactionID uuid.UUID `json:"transactionId"`
	Provider      string    `json:"provider"`
}

// Total is the amount owed on an order.
type Total struct {
	OrderID  uuid.UUID         `json:"orderId"`
	Amount   decimal.Decimal   `json:"totalMoney"`
	Currency enums.Currency    `json:"currency"`
	Status   enums.OrderStatus `json:"status"`
}

type service struct {
	orders   orderReader
	accounts accounts.Resolver
	sessions SessionRepository
	gateway  Gateway
	cfg      config.PaymentsConfig
	logg     *logger.Logger
}

// NewService builds the payment request generator.
func NewService(orderRepo orderReader, resolver accounts.Resolver, sessions SessionRepository, gateway Gateway, cfg config.PaymentsConfig, logg *logger.Logger) (Service, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("account resolver required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		orders:   orderRepo,
		accounts: resolver,
		sessions: sessions,
		gateway:  gateway,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

func (s *service) CreatePaymentLink(ctx context.Context, orderID, payerID uuid.UUID) (*Link, error) {
	payer, err := s.accounts.ResolveByID(ctx, payerID)
	if err != nil {
		return nil, err
	}
	return s.createLink(ctx, orderID, payer)
}

func (s *service) CreatePaymentLinkForEmail(ctx context.Context, orderID uuid.UUID, email string) (*Link, error) {
	payer, err := s.accounts.ResolveByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.createLink(ctx, orderID, payer)
}

func (s *service) createLink(ctx context.Context, orderID uuid.UUID, payer *accounts.Account) (*Link, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerAccountID != payer.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may pay for this order")
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidOrderState, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}
	if !order.TotalMoney.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has nothing to pay")
	}

	transactionID := uuid.New()
	ctx = s.logg.WithTransactionID(s.logg.WithOrderID(ctx, order.ID.String()), transactionID.String())
	session, err := s.gateway.CreateSession(ctx, SessionRequest{
		TransactionID: transactionID,
		OrderID:       order.ID,
		PayerID:       payer.ID,
		Amount:        order.TotalMoney,
		Currency:      order.Currency,
		Description:   describe(order),
		SuccessURL:    s.cfg.SuccessURL,
		FailureURL:    s.cfg.FailureURL,
	})
	if err != nil {
		s.logg.Error(ctx, "payment session creation failed", err)
		return nil, err
	}

	record := &models.PaymentSession{
		ID:             transactionID,
		OrderID:        order.ID,
		PayerAccountID: payer.ID,
		Amount:         order.TotalMoney,
		Currency:       order.Currency,
		Provider:       s.gateway.Name(),
		GatewayRef:     session.GatewayRef,
		CheckoutURL:    session.Link,
	}
	if err := s.sessions.Create(ctx, record); err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "payment link created")

	return &Link{
		URL:           session.Link,
		GatewayRef:    session.GatewayRef,
		TransactionID: transactionID,
		Provider:      s.gateway.Name(),
	}, nil
}

func (s *service) TotalMoney(ctx context.Context, orderID uuid.UUID) (*Total, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Total{
		OrderID:  order.ID,
		Amount:   order.TotalMoney,
		Currency: order.Currency,
		Status:   order.Status,
	}, nil
}

func describe(order *models.Order) string {
	switch order.Type {
	case enums.OrderTypeExchangeRequest, enums.OrderTypeExchangeDelivery:
		return "Marketplace exchange " + order.ID.String()[:8]
	default:
		return "Marketplace order " + order.ID.String()[:8]
	}
}
