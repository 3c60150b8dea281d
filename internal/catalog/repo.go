package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
)

// Reader is the read-only catalog contract used by cart, checkout and exchange.
type Reader interface {
	WithTx(tx *gorm.DB) Reader
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gorm-backed catalog reader.
func NewRepository(conn *gorm.DB) Reader {
	return &repository{db: conn}
}

// WithTx returns a reader bound to the given transaction.
func (r *repository) WithTx(tx *gorm.DB) Reader {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// GetProduct loads a single listing regardless of its active flag.
func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, db.MapError(err, "product")
	}
	return &product, nil
}

// GetProducts loads the listings for ids. Missing ids are absent from the map.
func (r *repository) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, db.MapError(err, "product")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
