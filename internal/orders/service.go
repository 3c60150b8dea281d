package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/outbox/payloads"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

const defaultCancelReason = "cancelled_by_buyer"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type accountResolver interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
}

type transitionRecorder interface {
	IncOrderTransition(to string)
}

// Service owns order status transitions and order reads.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListAll(ctx context.Context, params pagination.Params) (pagination.Page[models.Order], error)
	ListByType(ctx context.Context, orderType enums.OrderType, params pagination.Params) (pagination.Page[models.Order], error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, party Party, params pagination.Params) (pagination.Page[models.Order], error)
	AdvanceToDelivering(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	FinishDelivering(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error)
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       EventEmitter
	locks        *keylock.Locker
	negotiations NegotiationWithdrawer
	accounts     accountResolver
	metrics      transitionRecorder
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox EventEmitter, locks *keylock.Locker, negotiations NegotiationWithdrawer, accounts accountResolver, metrics transitionRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key locker required")
	}
	if negotiations == nil {
		return nil, fmt.Errorf("negotiation withdrawer required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account resolver required")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics recorder required")
	}
	return &service{
		repo:         repo,
		tx:           tx,
		outbox:       outbox,
		locks:        locks,
		negotiations: negotiations,
		accounts:     accounts,
		metrics:      metrics,
	}, nil
}

// LockKey is the keylock key guarding every status change of one order.
func LockKey(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

// Transition applies one status move through repo, which must be bound to the
// caller's transaction. order is updated in place on success.
func Transition(ctx context.Context, repo Repository, order *models.Order, to enums.OrderStatus, reason *string) error {
	from := order.Status
	if !CanTransition(from, to) {
		return invalidTransition(from, to)
	}

	now := time.Now().UTC()
	updates := map[string]any{}
	if column := timestampColumn(to); column != "" {
		updates[column] = now
	}
	if reason != nil {
		updates["cancel_reason"] = *reason
	}

	swapped, err := repo.CompareAndSetStatus(ctx, order.ID, from, to, updates)
	if err != nil {
		return err
	}
	if !swapped {
		return invalidTransition(from, to)
	}

	order.Status = to
	switch to {
	case enums.OrderStatusPaid:
		order.PaidAt = &now
	case enums.OrderStatusDelivering:
		order.DeliveringAt = &now
	case enums.OrderStatusCompleted:
		order.CompletedAt = &now
	case enums.OrderStatusCancelled, enums.OrderStatusRefused:
		order.CancelledAt = &now
		order.CancelReason = reason
	}
	return nil
}

// IsSeller reports whether accountID sells the order or any of its lines.
func IsSeller(order *models.Order, accountID uuid.UUID) bool {
	if order.SellerAccountID != nil && *order.SellerAccountID == accountID {
		return true
	}
	for _, line := range order.Lines {
		if line.SellerAccountID == accountID {
			return true
		}
	}
	return false
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.repo.FindByID(ctx, orderID)
}

func (s *service) ListAll(ctx context.Context, params pagination.Params) (pagination.Page[models.Order], error) {
	return s.repo.List(ctx, ListFilter{}, params)
}

func (s *service) ListByType(ctx context.Context, orderType enums.OrderType, params pagination.Params) (pagination.Page[models.Order], error) {
	if !orderType.IsValid() {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type")
	}
	return s.repo.List(ctx, ListFilter{Type: &orderType}, params)
}

func (s *service) ListForAccount(ctx context.Context, accountID uuid.UUID, party Party, params pagination.Params) (pagination.Page[models.Order], error) {
	if accountID == uuid.Nil {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	return s.repo.List(ctx, ListFilter{AccountID: &accountID, Party: party}, params)
}

func (s *service) AdvanceToDelivering(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.transition(ctx, orderID, enums.OrderStatusDelivering, nil, actor, func(actor Actor, order *models.Order) bool {
		return actor.IsAdmin() || IsSeller(order, actor.AccountID)
	})
}

func (s *service) FinishDelivering(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.transition(ctx, orderID, enums.OrderStatusCompleted, nil, actor, func(actor Actor, order *models.Order) bool {
		return actor.IsAdmin() || order.BuyerAccountID == actor.AccountID || IsSeller(order, actor.AccountID)
	})
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	return s.transition(ctx, orderID, enums.OrderStatusCancelled, &reason, actor, func(actor Actor, order *models.Order) bool {
		return actor.IsAdmin() || order.BuyerAccountID == actor.AccountID
	})
}

func (s *service) transition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, reason *string, actor Actor, allowed func(Actor, *models.Order) bool) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	actor, err := s.authorize(ctx, actor)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Lock(ctx, LockKey(orderID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	defer release()

	var result *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !allowed(actor, order) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not permitted to change this order")
		}

		from := order.Status
		if err := Transition(ctx, repo, order, to, reason); err != nil {
			return err
		}

		if to == enums.OrderStatusCancelled && order.Type == enums.OrderTypeExchangeRequest && from == enums.OrderStatusAwaitingCounterparty {
			if err := s.negotiations.WithdrawForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		}

		event := payloads.OrderStatusChangedEvent{OrderID: order.ID, From: from, To: to}
		if reason != nil {
			event.Reason = *reason
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     statusEventType(to),
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          event,
		}); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderTransition(string(to))
	return result, nil
}

// authorize rejects actors whose account may not transact and takes the role
// from the stored account rather than the caller's claim.
func (s *service) authorize(ctx context.Context, actor Actor) (Actor, error) {
	if actor.IsSystem() {
		return actor, nil
	}
	account, err := s.accounts.ResolveByID(ctx, actor.AccountID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{AccountID: account.ID, Role: account.Role}, nil
}

func statusEventType(to enums.OrderStatus) enums.OutboxEventType {
	switch to {
	case enums.OrderStatusDelivering:
		return enums.EventOrderDelivering
	case enums.OrderStatusCompleted:
		return enums.EventOrderCompleted
	default:
		return enums.EventOrderCancelled
	}
}
