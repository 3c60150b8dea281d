package reporting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

type snapshotRunner interface {
	ReadSnapshot(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service answers count and earnings questions. Every call reads from one
// snapshot.
type Service interface {
	CountAll(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error)
	CountByType(ctx context.Context, orderType enums.OrderType) (int64, error)
	CountForCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
	CountForCustomerByStatus(ctx context.Context, customerID uuid.UUID, status enums.OrderStatus) (int64, error)
	TotalEarningsForAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo Repository
	db   snapshotRunner
}

func NewService(repo Repository, db snapshotRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reporting repository required")
	}
	if db == nil {
		return nil, fmt.Errorf("snapshot runner required")
	}
	return &service{repo: repo, db: db}, nil
}

func (s *service) CountAll(ctx context.Context) (int64, error) {
	return s.count(ctx, OrderFilter{})
}

func (s *service) CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error) {
	if !status.IsValid() {
		return 0, invalidStatus(status)
	}
	return s.count(ctx, OrderFilter{Status: status})
}

func (s *service) CountByType(ctx context.Context, orderType enums.OrderType) (int64, error) {
	if !orderType.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type").
			WithDetails(map[string]any{"type": orderType})
	}
	return s.count(ctx, OrderFilter{Type: orderType})
}

func (s *service) CountForCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	if customerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return s.count(ctx, OrderFilter{BuyerID: customerID})
}

func (s *service) CountForCustomerByStatus(ctx context.Context, customerID uuid.UUID, status enums.OrderStatus) (int64, error) {
	if customerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !status.IsValid() {
		return 0, invalidStatus(status)
	}
	return s.count(ctx, OrderFilter{BuyerID: customerID, Status: status})
}

func (s *service) TotalEarningsForAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	if accountID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	total := decimal.Zero
	err := s.db.ReadSnapshot(ctx, func(tx *gorm.DB) error {
		whole, err := s.repo.SellerEarnings(ctx, tx, accountID)
		if err != nil {
			return err
		}
		shares, err := s.repo.LineEarnings(ctx, tx, accountID)
		if err != nil {
			return err
		}
		total = whole.Add(shares)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *service) count(ctx context.Context, filter OrderFilter) (int64, error) {
	var count int64
	err := s.db.ReadSnapshot(ctx, func(tx *gorm.DB) error {
		var err error
		count, err = s.repo.CountOrders(ctx, tx, filter)
		return err
	})
	return count, err
}

func invalidStatus(status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
		WithDetails(map[string]any{"status": status})
}
