package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

const linkedExchangeIndex = "ux_orders_linked_exchange"

type repository struct {
	db *gorm.DB
}

// NewRepository binds an order repository to the supplied GORM connection.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its lines.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if db.IsUniqueViolation(err, linkedExchangeIndex) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "exchange order already linked")
		}
		return db.MapError(err, "order")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// LockByID loads the order under a row lock. sqlite ignores the clause.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(query *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := query.
		Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, db.MapError(err, "order")
	}
	return &order, nil
}

// CompareAndSetStatus moves the order from -> to only if it is still in from.
// It reports false when another writer got there first.
func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, db.MapError(res.Error, "order")
	}
	return res.RowsAffected == 1, nil
}

// LinkExchangeOrder sets linked_exchange_order_id once.
func (r *repository) LinkExchangeOrder(ctx context.Context, id, linkedID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND linked_exchange_order_id IS NULL", id).
		Updates(map[string]any{"linked_exchange_order_id": linkedID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, linkedExchangeIndex) {
			return false, pkgerrors.Wrap(pkgerrors.CodeConflict, res.Error, "exchange order already linked")
		}
		return false, db.MapError(res.Error, "order")
	}
	return res.RowsAffected == 1, nil
}

// List returns a page of orders newest first. Lines are not loaded.
func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.AccountID != nil {
		switch filter.Party {
		case PartyBuyer:
			query = query.Where("buyer_account_id = ?", *filter.AccountID)
		case PartySeller:
			query = query.Where("seller_account_id = ? OR id IN (?)", *filter.AccountID,
				r.db.Model(&models.OrderLine{}).Select("order_id").Where("seller_account_id = ?", *filter.AccountID))
		default:
			query = query.Where("buyer_account_id = ? OR seller_account_id = ? OR id IN (?)", *filter.AccountID, *filter.AccountID,
				r.db.Model(&models.OrderLine{}).Select("order_id").Where("seller_account_id = ?", *filter.AccountID))
		}
	}

	query, err := pagination.Apply(query, params, "created_at")
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.Order]{}, db.MapError(err, "order")
	}
	return pagination.Build(rows, params, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{At: o.CreatedAt, ID: o.ID}
	}), nil
}
