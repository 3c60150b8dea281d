package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/internal/cart"
	"github.com/merakilabs/marketplace-backend/internal/catalog"
	"github.com/merakilabs/marketplace-backend/internal/checkout/helpers"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type accountResolver interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
}

type checkoutRecorder interface {
	IncCheckout(result string)
}

// Service turns a cart selection into a buy order.
type Service interface {
	Checkout(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) (*models.Order, error)
}

type service struct {
	tx       txRunner
	cart     cart.CartRepository
	orders   orders.Repository
	products catalog.Reader
	accounts accountResolver
	ledger   orders.LedgerAppender
	outbox   outboxPublisher
	locks    *keylock.Locker
	metrics  checkoutRecorder
	logg     *logger.Logger
}

// NewService wires the checkout orchestration.
func NewService(tx txRunner, cartRepo cart.CartRepository, orderRepo orders.Repository, products catalog.Reader, accounts accountResolver, ledger orders.LedgerAppender, outbox outboxPublisher, locks *keylock.Locker, metrics checkoutRecorder, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account resolver required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key locker required")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics recorder required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:       tx,
		cart:     cartRepo,
		orders:   orderRepo,
		products: products,
		accounts: accounts,
		ledger:   ledger,
		outbox:   outbox,
		locks:    locks,
		metrics:  metrics,
		logg:     logg,
	}, nil
}

// Checkout snapshots the selected lines into one buy order and clears exactly
// those lines, all in one transaction. Unknown line ids are ignored. An order
// whose total is zero is settled as paid in the same transaction.
func (s *service) Checkout(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) (*models.Order, error) {
	order, err := s.checkout(ctx, customerID, lineIDs)
	s.metrics.IncCheckout(resultLabel(err))
	if err != nil {
		if te := pkgerrors.As(err); te == nil || te.Code() == pkgerrors.CodeDependency {
			s.logg.Error(s.logg.WithAccountID(ctx, customerID.String()), "checkout failed", err)
		}
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "checkout completed")
	return order, nil
}

func (s *service) checkout(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) (*models.Order, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if len(lineIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyOrder, "no cart lines selected")
	}
	if _, err := s.accounts.ResolveByID(ctx, customerID); err != nil {
		return nil, err
	}

	release, err := s.locks.Lock(ctx, cart.LockKey(customerID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer release()

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cart.WithTx(tx)
		lines, err := cartRepo.FindSelected(ctx, customerID, lineIDs)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyOrder, "none of the selected lines are in the cart")
		}

		productIDs := make([]uuid.UUID, 0, len(lines))
		found := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			productIDs = append(productIDs, line.ProductID)
			found = append(found, line.ID)
		}
		products, err := s.products.WithTx(tx).GetProducts(ctx, productIDs)
		if err != nil {
			return err
		}
		if err := helpers.ValidateSnapshots(lines, products); err != nil {
			return err
		}
		currency, err := helpers.OrderCurrency(lines, products)
		if err != nil {
			return err
		}

		orderLines, total := helpers.BuildOrderLines(lines, products)
		order = &models.Order{
			Type:            enums.OrderTypeBuy,
			BuyerAccountID:  customerID,
			SellerAccountID: helpers.SharedSeller(orderLines),
			Status:          enums.OrderStatusPendingPayment,
			TotalMoney:      total,
			Currency:        currency,
			Lines:           orderLines,
		}
		orderRepo := s.orders.WithTx(tx)
		if err := orderRepo.Create(ctx, order); err != nil {
			return err
		}

		deleted, err := cartRepo.DeleteLines(ctx, customerID, found)
		if err != nil {
			return err
		}
		if deleted != int64(len(found)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart changed during checkout").
				WithDetails(map[string]any{"expected": len(found), "deleted": deleted})
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{AccountID: customerID, Role: string(enums.AccountRoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:         order.ID,
				Type:            order.Type,
				BuyerAccountID:  order.BuyerAccountID,
				SellerAccountID: order.SellerAccountID,
				TotalMoney:      order.TotalMoney,
				LineCount:       len(order.Lines),
			},
		})
		if err != nil {
			return err
		}
		_, err = orders.SettleFree(ctx, tx, orderRepo, s.ledger, s.outbox, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	switch te := pkgerrors.As(err); {
	case te == nil:
		return "error"
	case te.Code() == pkgerrors.CodeEmptyOrder:
		return "empty"
	case te.Code() == pkgerrors.CodeStaleSnapshot:
		return "stale"
	case te.Code() == pkgerrors.CodeConflict:
		return "conflict"
	default:
		return "error"
	}
}
