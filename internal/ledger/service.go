package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

// Service is the only writer of payment transactions.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	GetAll(ctx context.Context, params pagination.Params) (pagination.Page[models.Transaction], error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]models.Transaction, error)
	HasSuccess(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Entry captures the immutable data a ledger row requires.
type Entry struct {
	TransactionID uuid.UUID
	OrderID       uuid.UUID
	AccountID     uuid.UUID
	Amount        decimal.Decimal
	Outcome       enums.TransactionOutcome
	OccurredAt    time.Time
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// Append records entry inside the caller's transaction. A second success for
// the same order, or a repeat of the same (transaction, outcome), fails with
// DUPLICATE_NOTIFICATION.
func (s *service) Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if err := entry.validate(); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	if err := repo.LockOrder(ctx, entry.OrderID); err != nil {
		return nil, err
	}
	if entry.Outcome == enums.TransactionOutcomeSuccess {
		count, err := repo.CountByOrderAndOutcome(ctx, entry.OrderID, enums.TransactionOutcomeSuccess)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateNotification, "order already has a successful payment").
				WithDetails(map[string]any{"orderId": entry.OrderID})
		}
	}

	occurred := entry.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	txn := &models.Transaction{
		TransactionID: entry.TransactionID,
		OrderID:       entry.OrderID,
		AccountID:     entry.AccountID,
		Amount:        entry.Amount,
		Outcome:       entry.Outcome,
		OccurredAt:    occurred,
	}
	if err := repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (e Entry) validate() error {
	switch {
	case e.TransactionID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	case e.OrderID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	case e.AccountID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	case e.Amount.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	case !e.Outcome.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction outcome")
	}
	return nil
}

func (s *service) GetAll(ctx context.Context, params pagination.Params) (pagination.Page[models.Transaction], error) {
	return s.repo.List(ctx, params)
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]models.Transaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	return s.repo.ListByTransactionID(ctx, transactionID)
}

func (s *service) HasSuccess(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	count, err := s.repo.CountByOrderAndOutcome(ctx, orderID, enums.TransactionOutcomeSuccess)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
