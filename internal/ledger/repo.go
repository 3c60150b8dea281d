package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

// Repository manages persistence for ledger transactions. Rows are only ever
// inserted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOrder(ctx context.Context, orderID uuid.UUID) error
	Create(ctx context.Context, txn *models.Transaction) error
	CountByOrderAndOutcome(ctx context.Context, orderID uuid.UUID, outcome enums.TransactionOutcome) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]models.Transaction, error)
	List(ctx context.Context, params pagination.Params) (pagination.Page[models.Transaction], error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockOrder takes the order row lock that serializes success appends.
func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) error {
	var row struct{ ID uuid.UUID }
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("id").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		Take(&row).Error
	return db.MapError(err, "order")
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeDuplicateNotification, err, "payment outcome already recorded")
		}
		return db.MapError(err, "transaction")
	}
	return nil
}

func (r *repository) CountByOrderAndOutcome(ctx context.Context, orderID uuid.UUID, outcome enums.TransactionOutcome) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("order_id = ? AND outcome = ?", orderID, outcome).
		Count(&count).Error
	if err != nil {
		return 0, db.MapError(err, "transaction")
	}
	return count, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, db.MapError(err, "transaction")
	}
	return &txn, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	return r.listWhere(ctx, "order_id = ?", orderID)
}

func (r *repository) ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]models.Transaction, error) {
	return r.listWhere(ctx, "transaction_id = ?", transactionID)
}

func (r *repository) listWhere(ctx context.Context, query string, arg any) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, db.MapError(err, "transaction")
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params) (pagination.Page[models.Transaction], error) {
	query, err := pagination.Apply(r.db.WithContext(ctx).Model(&models.Transaction{}), params, "occurred_at")
	if err != nil {
		return pagination.Page[models.Transaction]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Transaction
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.Transaction]{}, db.MapError(err, "transaction")
	}
	return pagination.Build(rows, params, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{At: t.OccurredAt, ID: t.ID}
	}), nil
}
