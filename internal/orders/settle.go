package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/ledger"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/outbox/payloads"
)

// LedgerAppender writes the ledger row that settles an order.
type LedgerAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*models.Transaction, error)
}

// EventEmitter stages an outbox event inside the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SettleFree moves a zero-total pending_payment order to paid inside tx. It
// records a zero-amount success for the buyer and emits order_paid, so a free
// order reaches delivering through paid like any other. Orders that owe money
// are left alone and false is returned.
func SettleFree(ctx context.Context, tx *gorm.DB, repo Repository, appender LedgerAppender, events EventEmitter, order *models.Order) (bool, error) {
	if order.Status != enums.OrderStatusPendingPayment || !order.TotalMoney.IsZero() {
		return false, nil
	}

	txn, err := appender.Append(ctx, tx, ledger.Entry{
		TransactionID: uuid.New(),
		OrderID:       order.ID,
		AccountID:     order.BuyerAccountID,
		Amount:        decimal.Zero,
		Outcome:       enums.TransactionOutcomeSuccess,
	})
	if err != nil {
		return false, err
	}
	if err := Transition(ctx, repo, order, enums.OrderStatusPaid, nil); err != nil {
		return false, err
	}
	err = events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.PaymentEvent{
			OrderID:       order.ID,
			TransactionID: txn.TransactionID,
			AccountID:     order.BuyerAccountID,
			Amount:        decimal.Zero,
			Outcome:       enums.TransactionOutcomeSuccess,
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
