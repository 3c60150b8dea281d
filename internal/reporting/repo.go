package reporting

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// OrderFilter narrows an order count. Zero fields are ignored.
type OrderFilter struct {
	Status  enums.OrderStatus
	Type    enums.OrderType
	BuyerID uuid.UUID
}

// Repository runs the aggregate queries. Callers pass the snapshot tx.
type Repository interface {
	CountOrders(ctx context.Context, tx *gorm.DB, filter OrderFilter) (int64, error)
	SellerEarnings(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (decimal.Decimal, error)
	LineEarnings(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (decimal.Decimal, error)
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

func (repository) CountOrders(ctx context.Context, tx *gorm.DB, filter OrderFilter) (int64, error) {
	query := tx.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.BuyerID != uuid.Nil {
		query = query.Where("buyer_account_id = ?", filter.BuyerID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, db.MapError(err, "order")
	}
	return count, nil
}

type sumRow struct {
	Total decimal.NullDecimal
}

const settledOrder = `EXISTS (SELECT 1 FROM transactions t WHERE t.order_id = orders.id AND t.outcome = ?)`

// SellerEarnings sums totals of settled orders sold entirely by accountID.
func (repository) SellerEarnings(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (decimal.Decimal, error) {
	var row sumRow
	err := tx.WithContext(ctx).
		Model(&models.Order{}).
		Select("SUM(orders.total_money) AS total").
		Where("orders.seller_account_id = ?", accountID).
		Where(settledOrder, enums.TransactionOutcomeSuccess).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, db.MapError(err, "order")
	}
	return valueOrZero(row.Total), nil
}

// LineEarnings sums accountID's lines on settled multi-seller orders.
func (repository) LineEarnings(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (decimal.Decimal, error) {
	var row sumRow
	err := tx.WithContext(ctx).
		Model(&models.OrderLine{}).
		Select("SUM(order_lines.line_total) AS total").
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("orders.seller_account_id IS NULL").
		Where("order_lines.seller_account_id = ?", accountID).
		Where(settledOrder, enums.TransactionOutcomeSuccess).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, db.MapError(err, "order line")
	}
	return valueOrZero(row.Total), nil
}

func valueOrZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}
