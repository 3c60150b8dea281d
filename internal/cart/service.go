package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
)

type productLoader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type accountResolver interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
}

// Service exposes cart operations for one customer at a time.
type Service interface {
	Add(ctx context.Context, customerID, productID uuid.UUID, quantity decimal.Decimal) (*models.CartLine, error)
	Update(ctx context.Context, lineID uuid.UUID, quantity decimal.Decimal, customerID uuid.UUID) (*UpdateResult, error)
	Remove(ctx context.Context, lineID, customerID uuid.UUID) (bool, error)
	List(ctx context.Context, customerID uuid.UUID) (*Cart, error)
}

// Cart is the customer's current selection.
type Cart struct {
	CustomerID uuid.UUID
	Lines      []models.CartLine
	Subtotal   decimal.Decimal
}

// UpdateResult carries the refreshed line, or Removed when the new quantity
// dropped the line.
type UpdateResult struct {
	Line    *models.CartLine
	Removed bool
}

type service struct {
	repo     CartRepository
	products productLoader
	accounts accountResolver
	locks    *keylock.Locker
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, products productLoader, accounts accountResolver, locks *keylock.Locker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account resolver required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key locker required")
	}
	return &service{repo: repo, products: products, accounts: accounts, locks: locks}, nil
}

func (s *service) Add(ctx context.Context, customerID, productID uuid.UUID, quantity decimal.Decimal) (*models.CartLine, error) {
	if customerID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and product are required")
	}
	if !quantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if _, err := s.accounts.ResolveByID(ctx, customerID); err != nil {
		return nil, err
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "product does not exist")
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
			WithDetails(map[string]any{"productId": productID})
	}
	if product.OwnerAccountID == customerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot add your own product to the cart")
	}

	release, err := s.locks.Lock(ctx, LockKey(customerID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer release()

	return s.repo.Upsert(ctx, &models.CartLine{
		CustomerID:        customerID,
		ProductID:         productID,
		Quantity:          quantity,
		UnitPriceSnapshot: product.Price,
	})
}

func (s *service) Update(ctx context.Context, lineID uuid.UUID, quantity decimal.Decimal, customerID uuid.UUID) (*UpdateResult, error) {
	if _, err := s.accounts.ResolveByID(ctx, customerID); err != nil {
		return nil, err
	}
	release, err := s.locks.Lock(ctx, LockKey(customerID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer release()

	if _, err := s.repo.FindForCustomer(ctx, lineID, customerID); err != nil {
		return nil, err
	}

	if !quantity.IsPositive() {
		if _, err := s.repo.DeleteLines(ctx, customerID, []uuid.UUID{lineID}); err != nil {
			return nil, err
		}
		return &UpdateResult{Removed: true}, nil
	}

	affected, err := s.repo.UpdateQuantity(ctx, lineID, customerID, quantity)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	line, err := s.repo.FindForCustomer(ctx, lineID, customerID)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Line: line}, nil
}

func (s *service) Remove(ctx context.Context, lineID, customerID uuid.UUID) (bool, error) {
	if _, err := s.accounts.ResolveByID(ctx, customerID); err != nil {
		return false, err
	}
	release, err := s.locks.Lock(ctx, LockKey(customerID))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer release()

	affected, err := s.repo.DeleteLines(ctx, customerID, []uuid.UUID{lineID})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *service) List(ctx context.Context, customerID uuid.UUID) (*Cart, error) {
	lines, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &Cart{
		CustomerID: customerID,
		Lines:      lines,
		Subtotal:   Subtotal(lines),
	}, nil
}

// Subtotal sums snapshot price times quantity over lines.
func Subtotal(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}
