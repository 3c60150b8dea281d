package reconciliation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/ledger"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/outbox/payloads"
)

const actorRoleGateway = "gateway"

// Result labels for the notification counter.
const (
	resultSuccess      = "success"
	resultFailed       = "failed"
	resultDuplicate    = "duplicate"
	resultMismatch     = "amount_mismatch"
	resultInvalidState = "invalid_state"
	resultError        = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error)
}

type notificationRecorder interface {
	IncNotification(result string)
}

// Notification is a gateway callback for one transaction. Amount is optional;
// the session amount is used when absent.
type Notification struct {
	TransactionID uuid.UUID
	Amount        *decimal.Decimal
}

// Result is what a processed notification produced.
type Result struct {
	Order       *models.Order
	Transaction *models.Transaction
}

// Service turns gateway notifications into ledger rows and order states.
type Service interface {
	OnSuccess(ctx context.Context, n Notification) (*Result, error)
	OnFailure(ctx context.Context, n Notification) (*Result, error)
}

// ServiceParams groups the reconciler dependencies. Guard is optional.
type ServiceParams struct {
	Sessions sessionReader
	Orders   orders.Repository
	Ledger   ledger.Service
	Tx       txRunner
	Outbox   outboxPublisher
	Locks    *keylock.Locker
	Guard    *IdempotencyGuard
	Metrics  notificationRecorder
	Logger   *logger.Logger
}

type service struct {
	sessions sessionReader
	orders   orders.Repository
	ledger   ledger.Service
	tx       txRunner
	outbox   outboxPublisher
	locks    *keylock.Locker
	guard    *IdempotencyGuard
	metrics  notificationRecorder
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Sessions == nil:
		return nil, fmt.Errorf("payment session reader required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Locks == nil:
		return nil, fmt.Errorf("key locker required")
	case params.Metrics == nil:
		return nil, fmt.Errorf("metrics recorder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		sessions: params.Sessions,
		orders:   params.Orders,
		ledger:   params.Ledger,
		tx:       params.Tx,
		outbox:   params.Outbox,
		locks:    params.Locks,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

func (s *service) OnSuccess(ctx context.Context, n Notification) (*Result, error) {
	return s.handle(ctx, n, enums.TransactionOutcomeSuccess, s.applySuccess)
}

func (s *service) OnFailure(ctx context.Context, n Notification) (*Result, error) {
	return s.handle(ctx, n, enums.TransactionOutcomeFailed, s.applyFailure)
}

type applyFunc func(ctx context.Context, session *models.PaymentSession, amount decimal.Decimal) (*Result, error)

func (s *service) handle(ctx context.Context, n Notification, outcome enums.TransactionOutcome, apply applyFunc) (*Result, error) {
	if n.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if n.Amount != nil && n.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	ctx = s.logg.WithTransactionID(ctx, n.TransactionID.String())

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, outcome, n.TransactionID)
		if err != nil {
			// Ledger indexes still dedup without redis.
			s.logg.Warn(ctx, "idempotency guard unavailable: "+err.Error())
		} else if seen {
			s.metrics.IncNotification(resultDuplicate)
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateNotification, "notification already processed").
				WithDetails(map[string]any{"transactionId": n.TransactionID, "outcome": outcome})
		}
	}

	result, err := s.process(ctx, n, apply)
	s.metrics.IncNotification(resultLabel(outcome, err))
	if err != nil {
		if s.guard != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateNotification) {
			if releaseErr := s.guard.Release(ctx, outcome, n.TransactionID); releaseErr != nil {
				s.logg.Error(ctx, "release idempotency key", releaseErr)
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *service) process(ctx context.Context, n Notification, apply applyFunc) (*Result, error) {
	session, err := s.sessions.FindByID(ctx, n.TransactionID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, session.OrderID.String())

	release, err := s.locks.Lock(ctx, orders.LockKey(session.OrderID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	defer release()

	amount := session.Amount
	if n.Amount != nil {
		amount = *n.Amount
	}
	return apply(ctx, session, amount)
}

func (s *service) applySuccess(ctx context.Context, session *models.PaymentSession, amount decimal.Decimal) (*Result, error) {
	var (
		result   *Result
		mismatch error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.LockByID(ctx, session.OrderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case enums.OrderStatusPaid, enums.OrderStatusDelivering, enums.OrderStatusCompleted:
			return pkgerrors.New(pkgerrors.CodeDuplicateNotification, "order already settled").
				WithDetails(map[string]any{"orderId": order.ID, "status": order.Status})
		case enums.OrderStatusPendingPayment:
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidOrderState, "order cannot accept a payment").
				WithDetails(map[string]any{"orderId": order.ID, "status": order.Status})
		}

		if !amount.Equal(order.TotalMoney) {
			mismatch = pkgerrors.New(pkgerrors.CodeAmountMismatch, "payment amount does not match order total").
				WithDetails(map[string]any{
					"orderId":  order.ID,
					"expected": order.TotalMoney.String(),
					"received": amount.String(),
				})
			// one review event per transaction however often the gateway retries
			expected := order.TotalMoney
			_, err := s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentMismatch,
				AggregateType: enums.AggregateTransaction,
				AggregateID:   session.ID,
				Actor:         gatewayActor(session),
				Data: payloads.PaymentEvent{
					OrderID:       order.ID,
					TransactionID: session.ID,
					AccountID:     session.PayerAccountID,
					Amount:        amount,
					Expected:      &expected,
				},
			})
			return err
		}

		txn, err := s.ledger.Append(ctx, tx, ledger.Entry{
			TransactionID: session.ID,
			OrderID:       order.ID,
			AccountID:     session.PayerAccountID,
			Amount:        amount,
			Outcome:       enums.TransactionOutcomeSuccess,
		})
		if err != nil {
			return err
		}
		if err := orders.Transition(ctx, repo, order, enums.OrderStatusPaid, nil); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         gatewayActor(session),
			Data: payloads.PaymentEvent{
				OrderID:       order.ID,
				TransactionID: session.ID,
				AccountID:     session.PayerAccountID,
				Amount:        amount,
				Outcome:       enums.TransactionOutcomeSuccess,
			},
		}); err != nil {
			return err
		}
		result = &Result{Order: order, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mismatch != nil {
		s.logg.Warn(ctx, mismatch.Error())
		return nil, mismatch
	}
	s.logg.Info(ctx, "order paid")
	return result, nil
}

func (s *service) applyFailure(ctx context.Context, session *models.PaymentSession, amount decimal.Decimal) (*Result, error) {
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).LockByID(ctx, session.OrderID)
		if err != nil {
			return err
		}
		txn, err := s.ledger.Append(ctx, tx, ledger.Entry{
			TransactionID: session.ID,
			OrderID:       order.ID,
			AccountID:     session.PayerAccountID,
			Amount:        amount,
			Outcome:       enums.TransactionOutcomeFailed,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   session.ID,
			Actor:         gatewayActor(session),
			Data: payloads.PaymentEvent{
				OrderID:       order.ID,
				TransactionID: session.ID,
				AccountID:     session.PayerAccountID,
				Amount:        amount,
				Outcome:       enums.TransactionOutcomeFailed,
			},
		}); err != nil {
			return err
		}
		result = &Result{Order: order, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "payment failure recorded")
	return result, nil
}

func gatewayActor(session *models.PaymentSession) *outbox.ActorRef {
	return &outbox.ActorRef{AccountID: session.PayerAccountID, Role: actorRoleGateway}
}

func resultLabel(outcome enums.TransactionOutcome, err error) string {
	if err == nil {
		if outcome == enums.TransactionOutcomeSuccess {
			return resultSuccess
		}
		return resultFailed
	}
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeDuplicateNotification:
		return resultDuplicate
	case pkgerrors.CodeAmountMismatch:
		return resultMismatch
	case pkgerrors.CodeInvalidOrderState:
		return resultInvalidState
	default:
		return resultError
	}
}
