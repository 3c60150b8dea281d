package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
)

// SessionRepository stores the pending gateway reference for each link.
type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	Create(ctx context.Context, session *models.PaymentSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentSession, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(conn *gorm.DB) SessionRepository {
	return &sessionRepository{db: conn}
}

func (r *sessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &sessionRepository{db: tx}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.PaymentSession) error {
	return db.MapError(r.db.WithContext(ctx).Create(session).Error, "payment session")
}

func (r *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, db.MapError(err, "payment session")
	}
	return &session, nil
}

func (r *sessionRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentSession, error) {
	var sessions []models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, db.MapError(err, "payment session")
	}
	return sessions, nil
}
