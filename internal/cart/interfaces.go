package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service
// and by checkout.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Upsert(ctx context.Context, line *models.CartLine) (*models.CartLine, error)
	FindForCustomer(ctx context.Context, lineID, customerID uuid.UUID) (*models.CartLine, error)
	UpdateQuantity(ctx context.Context, lineID, customerID uuid.UUID, quantity decimal.Decimal) (int64, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CartLine, error)
	FindSelected(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) ([]models.CartLine, error)
	DeleteLines(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) (int64, error)
}

// LockKey is the keylock key guarding every mutation of a customer's cart.
func LockKey(customerID uuid.UUID) string {
	return "cart:" + customerID.String()
}
