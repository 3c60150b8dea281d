package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
)

// Repository persists cart lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to the supplied GORM connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Upsert inserts the line or adds its quantity to the existing line for the
// same customer and product, refreshing the price snapshot in the same
// statement.
func (r *Repository) Upsert(ctx context.Context, line *models.CartLine) (*models.CartLine, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":            gorm.Expr("cart_lines.quantity + excluded.quantity"),
			"unit_price_snapshot": gorm.Expr("excluded.unit_price_snapshot"),
			"updated_at":          time.Now().UTC(),
		}),
	}).Create(line).Error
	if err != nil {
		return nil, db.MapError(err, "cart line")
	}

	var stored models.CartLine
	err = r.db.WithContext(ctx).
		Where("customer_id = ? AND product_id = ?", line.CustomerID, line.ProductID).
		First(&stored).Error
	if err != nil {
		return nil, db.MapError(err, "cart line")
	}
	return &stored, nil
}

// FindForCustomer loads a line only when it belongs to customerID.
func (r *Repository) FindForCustomer(ctx context.Context, lineID, customerID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", lineID, customerID).
		First(&line).Error
	if err != nil {
		return nil, db.MapError(err, "cart line")
	}
	return &line, nil
}

// UpdateQuantity overwrites the quantity of a customer's line.
func (r *Repository) UpdateQuantity(ctx context.Context, lineID, customerID uuid.UUID, quantity decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("id = ? AND customer_id = ?", lineID, customerID).
		Updates(map[string]any{"quantity": quantity, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, db.MapError(res.Error, "cart line")
	}
	return res.RowsAffected, nil
}

// ListByCustomer returns the customer's lines oldest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, db.MapError(err, "cart line")
	}
	return lines, nil
}

// FindSelected returns the customer's lines whose ids are in lineIDs, oldest
// first, under a row lock held until the surrounding transaction ends. Ids
// that do not belong to the customer are ignored. sqlite ignores the lock.
func (r *Repository) FindSelected(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) ([]models.CartLine, error) {
	if len(lineIDs) == 0 {
		return nil, nil
	}
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND id IN ?", customerID, lineIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, db.MapError(err, "cart line")
	}
	return lines, nil
}

// DeleteLines removes the listed lines of one customer and reports how many
// rows were deleted.
func (r *Repository) DeleteLines(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) (int64, error) {
	if len(lineIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("customer_id = ? AND id IN ?", customerID, lineIDs).
		Delete(&models.CartLine{})
	if res.Error != nil {
		return 0, db.MapError(res.Error, "cart line")
	}
	return res.RowsAffected, nil
}
