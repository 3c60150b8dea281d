package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

const requestingOrderIndex = "ux_negotiations_requesting_order"

// NegotiationRepository persists exchange negotiations.
type NegotiationRepository interface {
	WithTx(tx *gorm.DB) NegotiationRepository
	Create(ctx context.Context, negotiation *models.ExchangeNegotiation) error
	FindByRequestingOrder(ctx context.Context, orderID uuid.UUID) (*models.ExchangeNegotiation, error)
	CompareAndSetState(ctx context.Context, id uuid.UUID, from, to enums.NegotiationState) (bool, error)
	SetDeliveryOrder(ctx context.Context, id, deliveryOrderID uuid.UUID) error
	WithdrawForOrder(ctx context.Context, tx *gorm.DB, requestingOrderID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) NegotiationRepository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) NegotiationRepository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, negotiation *models.ExchangeNegotiation) error {
	if err := r.db.WithContext(ctx).Create(negotiation).Error; err != nil {
		if db.IsUniqueViolation(err, requestingOrderIndex) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "negotiation already exists for order")
		}
		return db.MapError(err, "negotiation")
	}
	return nil
}

func (r *repository) FindByRequestingOrder(ctx context.Context, orderID uuid.UUID) (*models.ExchangeNegotiation, error) {
	var negotiation models.ExchangeNegotiation
	err := r.db.WithContext(ctx).
		Where("requesting_order_id = ?", orderID).
		First(&negotiation).Error
	if err != nil {
		return nil, db.MapError(err, "negotiation")
	}
	return &negotiation, nil
}

// CompareAndSetState resolves the negotiation only if it is still in from.
func (r *repository) CompareAndSetState(ctx context.Context, id uuid.UUID, from, to enums.NegotiationState) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.ExchangeNegotiation{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{"state": to, "resolved_at": now, "updated_at": now})
	if res.Error != nil {
		return false, db.MapError(res.Error, "negotiation")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetDeliveryOrder(ctx context.Context, id, deliveryOrderID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.ExchangeNegotiation{}).
		Where("id = ?", id).
		Updates(map[string]any{"delivery_order_id": deliveryOrderID, "updated_at": time.Now().UTC()}).Error
	return db.MapError(err, "negotiation")
}

// WithdrawForOrder moves a still-open negotiation to withdrawn inside tx.
// Resolved negotiations are left untouched.
func (r *repository) WithdrawForOrder(ctx context.Context, tx *gorm.DB, requestingOrderID uuid.UUID) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	now := time.Now().UTC()
	err := conn.WithContext(ctx).
		Model(&models.ExchangeNegotiation{}).
		Where("requesting_order_id = ? AND state = ?", requestingOrderID, enums.NegotiationStateRequested).
		Updates(map[string]any{"state": enums.NegotiationStateWithdrawn, "resolved_at": now, "updated_at": now}).Error
	return db.MapError(err, "negotiation")
}
