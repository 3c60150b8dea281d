package exchange

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/outbox/payloads"
)

const refusedReason = "exchange_refused"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type productLoader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type accountResolver interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
	ResolveByEmail(ctx context.Context, email string) (*accounts.Account, error)
}

// Service drives the two-party exchange negotiation.
type Service interface {
	RequestExchange(ctx context.Context, requesterID, targetProductID uuid.UUID, offeredProductID *uuid.UUID) (*Result, error)
	Accept(ctx context.Context, orderID uuid.UUID, counterpartyEmail string) (*Result, error)
	Refuse(ctx context.Context, orderID uuid.UUID, counterpartyEmail string) (*Result, error)
	CreateExchangeOrder(ctx context.Context, orderID uuid.UUID, customerEmail string) (*models.Order, error)
	GetNegotiation(ctx context.Context, orderID uuid.UUID) (*models.ExchangeNegotiation, error)
}

// Result bundles the request order, its negotiation and, after acceptance,
// the linked delivery order.
type Result struct {
	Order         *models.Order
	Negotiation   *models.ExchangeNegotiation
	DeliveryOrder *models.Order
}

type service struct {
	negotiations NegotiationRepository
	orders       orders.Repository
	tx           txRunner
	outbox       outboxPublisher
	products     productLoader
	accounts     accountResolver
	ledger       orders.LedgerAppender
	locks        *keylock.Locker
}

// NewService builds the exchange workflow service.
func NewService(negotiations NegotiationRepository, orderRepo orders.Repository, tx txRunner, outbox outboxPublisher, products productLoader, accounts accountResolver, ledger orders.LedgerAppender, locks *keylock.Locker) (Service, error) {
	if negotiations == nil {
		return nil, fmt.Errorf("negotiation repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account resolver required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key locker required")
	}
	return &service{
		negotiations: negotiations,
		orders:       orderRepo,
		tx:           tx,
		outbox:       outbox,
		products:     products,
		accounts:     accounts,
		ledger:       ledger,
		locks:        locks,
	}, nil
}

// Differential returns what each side owes: the requester pays the amount the
// target exceeds the offer by, the counterparty pays the reverse.
func Differential(target decimal.Decimal, offered *decimal.Decimal) (requester, counterparty decimal.Decimal) {
	if offered == nil {
		return target, decimal.Zero
	}
	return decimal.Max(decimal.Zero, target.Sub(*offered)), decimal.Max(decimal.Zero, offered.Sub(target))
}

func (s *service) RequestExchange(ctx context.Context, requesterID, targetProductID uuid.UUID, offeredProductID *uuid.UUID) (*Result, error) {
	if requesterID == uuid.Nil || targetProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester and target product are required")
	}
	if _, err := s.accounts.ResolveByID(ctx, requesterID); err != nil {
		return nil, err
	}

	target, err := s.loadActive(ctx, targetProductID, "target")
	if err != nil {
		return nil, err
	}
	if target.OwnerAccountID == requesterID {
		return nil, pkgerrors.New(pkgerrors.CodeSelfExchange, "cannot request an exchange for your own product")
	}

	var offered *models.Product
	var offeredPrice *decimal.Decimal
	if offeredProductID != nil {
		offered, err = s.loadActive(ctx, *offeredProductID, "offered")
		if err != nil {
			return nil, err
		}
		if offered.OwnerAccountID != requesterID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "offered product must belong to the requester")
		}
		offeredPrice = &offered.Price
	}

	owed, _ := Differential(target.Price, offeredPrice)
	seller := target.OwnerAccountID
	order := &models.Order{
		Type:            enums.OrderTypeExchangeRequest,
		BuyerAccountID:  requesterID,
		SellerAccountID: &seller,
		Status:          enums.OrderStatusAwaitingCounterparty,
		TotalMoney:      owed,
		Currency:        target.Currency,
		Lines:           []models.OrderLine{snapshotLine(target)},
	}
	negotiation := &models.ExchangeNegotiation{
		OfferedProductID:      offeredProductID,
		TargetProductID:       target.ID,
		RequesterAccountID:    requesterID,
		CounterpartyAccountID: target.OwnerAccountID,
		State:                 enums.NegotiationStateRequested,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		negotiation.RequestingOrderID = order.ID
		if err := s.negotiations.WithTx(tx).Create(ctx, negotiation); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventExchangeRequested, negotiation)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Order: order, Negotiation: negotiation}, nil
}

func (s *service) Accept(ctx context.Context, orderID uuid.UUID, counterpartyEmail string) (*Result, error) {
	caller, negotiation, release, err := s.begin(ctx, orderID, counterpartyEmail)
	if err != nil {
		return nil, err
	}
	defer release()

	if caller.ID != negotiation.CounterpartyAccountID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorizedCounterparty, "only the counterparty may accept")
	}
	if negotiation.State != enums.NegotiationStateRequested {
		return nil, alreadyResolved(negotiation.State)
	}

	target, offered, stale, err := s.snapshots(ctx, negotiation)
	if err != nil {
		return nil, err
	}
	if stale {
		if err := s.resolveStale(ctx, negotiation); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStaleSnapshot, "exchanged product is no longer available").
			WithDetails(map[string]any{"orderId": orderID})
	}

	result := &Result{Negotiation: negotiation}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		negotiations := s.negotiations.WithTx(tx)

		swapped, err := negotiations.CompareAndSetState(ctx, negotiation.ID, enums.NegotiationStateRequested, enums.NegotiationStateAccepted)
		if err != nil {
			return err
		}
		if !swapped {
			return alreadyResolved("")
		}
		negotiation.State = enums.NegotiationStateAccepted

		order, err := repo.LockByID(ctx, negotiation.RequestingOrderID)
		if err != nil {
			return err
		}
		if err := orders.Transition(ctx, repo, order, enums.OrderStatusPendingPayment, nil); err != nil {
			return err
		}
		if _, err := orders.SettleFree(ctx, tx, repo, s.ledger, s.outbox, order); err != nil {
			return err
		}

		delivery, err := s.createDelivery(ctx, tx, order, negotiation, target, offered)
		if err != nil {
			return err
		}
		result.Order = order
		result.DeliveryOrder = delivery
		return s.emit(ctx, tx, enums.EventExchangeAccepted, negotiation)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Refuse(ctx context.Context, orderID uuid.UUID, counterpartyEmail string) (*Result, error) {
	caller, negotiation, release, err := s.begin(ctx, orderID, counterpartyEmail)
	if err != nil {
		return nil, err
	}
	defer release()

	if caller.ID != negotiation.CounterpartyAccountID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorizedCounterparty, "only the counterparty may refuse")
	}
	if negotiation.State != enums.NegotiationStateRequested {
		return nil, alreadyResolved(negotiation.State)
	}

	result := &Result{Negotiation: negotiation}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.resolve(ctx, tx, negotiation, enums.NegotiationStateRefused, enums.OrderStatusCancelled)
		result.Order = order
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) CreateExchangeOrder(ctx context.Context, orderID uuid.UUID, customerEmail string) (*models.Order, error) {
	caller, negotiation, release, err := s.begin(ctx, orderID, customerEmail)
	if err != nil {
		return nil, err
	}
	defer release()

	if caller.ID != negotiation.CounterpartyAccountID && caller.ID != negotiation.RequesterAccountID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only exchange parties may finalize the exchange")
	}
	if negotiation.State != enums.NegotiationStateAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "exchange has not been accepted").
			WithDetails(map[string]any{"state": negotiation.State})
	}

	request, err := s.orders.FindByID(ctx, negotiation.RequestingOrderID)
	if err != nil {
		return nil, err
	}
	if request.LinkedExchangeOrderID != nil {
		return s.orders.FindByID(ctx, *request.LinkedExchangeOrderID)
	}

	target, err := s.products.GetProduct(ctx, negotiation.TargetProductID)
	if err != nil {
		return nil, err
	}
	var offered *models.Product
	if negotiation.OfferedProductID != nil {
		if offered, err = s.products.GetProduct(ctx, *negotiation.OfferedProductID); err != nil {
			return nil, err
		}
	}

	var delivery *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		delivery, err = s.createDelivery(ctx, tx, request, negotiation, target, offered)
		return err
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *service) GetNegotiation(ctx context.Context, orderID uuid.UUID) (*models.ExchangeNegotiation, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.negotiations.FindByRequestingOrder(ctx, orderID)
}

// begin resolves the caller, takes the request order lock and loads the
// negotiation under it. The returned release must be called.
func (s *service) begin(ctx context.Context, orderID uuid.UUID, email string) (*accounts.Account, *models.ExchangeNegotiation, func(), error) {
	if orderID == uuid.Nil {
		return nil, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	caller, err := s.accounts.ResolveByEmail(ctx, email)
	if err != nil {
		return nil, nil, nil, err
	}
	release, err := s.locks.Lock(ctx, orders.LockKey(orderID))
	if err != nil {
		return nil, nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	negotiation, err := s.negotiations.FindByRequestingOrder(ctx, orderID)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	return caller, negotiation, release, nil
}

// snapshots reloads both products. stale reports that either is gone or no
// longer listed.
func (s *service) snapshots(ctx context.Context, negotiation *models.ExchangeNegotiation) (target, offered *models.Product, stale bool, err error) {
	target, err = s.products.GetProduct(ctx, negotiation.TargetProductID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, nil, true, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	if !target.IsActive {
		return nil, nil, true, nil
	}
	if negotiation.OfferedProductID == nil {
		return target, nil, false, nil
	}
	offered, err = s.products.GetProduct(ctx, *negotiation.OfferedProductID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, nil, true, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	return target, offered, !offered.IsActive, nil
}

func (s *service) resolveStale(ctx context.Context, negotiation *models.ExchangeNegotiation) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.resolve(ctx, tx, negotiation, enums.NegotiationStateRefused, enums.OrderStatusRefused)
		return err
	})
}

// resolve closes the negotiation with state and moves the request order to
// status, both inside tx.
func (s *service) resolve(ctx context.Context, tx *gorm.DB, negotiation *models.ExchangeNegotiation, state enums.NegotiationState, status enums.OrderStatus) (*models.Order, error) {
	repo := s.orders.WithTx(tx)
	swapped, err := s.negotiations.WithTx(tx).CompareAndSetState(ctx, negotiation.ID, enums.NegotiationStateRequested, state)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, alreadyResolved("")
	}
	negotiation.State = state

	order, err := repo.LockByID(ctx, negotiation.RequestingOrderID)
	if err != nil {
		return nil, err
	}
	reason := refusedReason
	if err := orders.Transition(ctx, repo, order, status, &reason); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, enums.EventExchangeRefused, negotiation); err != nil {
		return nil, err
	}
	return order, nil
}

// createDelivery writes the counter-delivery order and links it to request.
// A concurrent duplicate fails on the linked order unique index.
func (s *service) createDelivery(ctx context.Context, tx *gorm.DB, request *models.Order, negotiation *models.ExchangeNegotiation, target, offered *models.Product) (*models.Order, error) {
	var offeredPrice *decimal.Decimal
	var lines []models.OrderLine
	currency := target.Currency
	if offered != nil {
		offeredPrice = &offered.Price
		lines = []models.OrderLine{snapshotLine(offered)}
		currency = offered.Currency
	}
	targetPrice := target.Price
	if len(request.Lines) > 0 {
		targetPrice = request.Lines[0].UnitPrice
	}
	_, owed := Differential(targetPrice, offeredPrice)

	seller := negotiation.RequesterAccountID
	requestID := request.ID
	delivery := &models.Order{
		Type:                  enums.OrderTypeExchangeDelivery,
		BuyerAccountID:        negotiation.CounterpartyAccountID,
		SellerAccountID:       &seller,
		Status:                enums.OrderStatusPendingPayment,
		TotalMoney:            owed,
		Currency:              currency,
		LinkedExchangeOrderID: &requestID,
		Lines:                 lines,
	}

	repo := s.orders.WithTx(tx)
	if err := repo.Create(ctx, delivery); err != nil {
		return nil, err
	}
	linked, err := repo.LinkExchangeOrder(ctx, request.ID, delivery.ID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "exchange order already linked")
	}
	request.LinkedExchangeOrderID = &delivery.ID

	if err := s.negotiations.WithTx(tx).SetDeliveryOrder(ctx, negotiation.ID, delivery.ID); err != nil {
		return nil, err
	}
	negotiation.DeliveryOrderID = &delivery.ID

	if _, err := orders.SettleFree(ctx, tx, repo, s.ledger, s.outbox, delivery); err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, negotiation *models.ExchangeNegotiation) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateNegotiation,
		AggregateID:   negotiation.ID,
		Actor:         &outbox.ActorRef{AccountID: negotiation.RequesterAccountID, Role: string(enums.AccountRoleCustomer)},
		Data: payloads.ExchangeEvent{
			NegotiationID:         negotiation.ID,
			RequestingOrderID:     negotiation.RequestingOrderID,
			DeliveryOrderID:       negotiation.DeliveryOrderID,
			RequesterAccountID:    negotiation.RequesterAccountID,
			CounterpartyAccountID: negotiation.CounterpartyAccountID,
			State:                 negotiation.State,
		},
	})
}

func (s *service) loadActive(ctx context.Context, productID uuid.UUID, role string) (*models.Product, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, role+" product does not exist")
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, role+" product is not available")
	}
	return product, nil
}

func snapshotLine(product *models.Product) models.OrderLine {
	quantity := decimal.NewFromInt(1)
	return models.OrderLine{
		Position:        0,
		ProductID:       product.ID,
		SellerAccountID: product.OwnerAccountID,
		ProductName:     product.Name,
		UnitPrice:       product.Price,
		Quantity:        quantity,
		LineTotal:       product.Price.Mul(quantity),
	}
}

func alreadyResolved(state enums.NegotiationState) error {
	err := pkgerrors.New(pkgerrors.CodeAlreadyResolved, "exchange negotiation already resolved")
	if state != "" {
		err = err.WithDetails(map[string]any{"state": state})
	}
	return err
}
