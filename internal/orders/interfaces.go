package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	LinkExchangeOrder(ctx context.Context, id, linkedID uuid.UUID) (bool, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error)
}

// Party selects which side of an order an account must be on.
type Party string

const (
	PartyAny    Party = "any"
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// ParseParty converts a query value into a Party. Empty means PartyAny.
func ParseParty(value string) (Party, bool) {
	switch Party(value) {
	case "", PartyAny:
		return PartyAny, true
	case PartyBuyer:
		return PartyBuyer, true
	case PartySeller:
		return PartySeller, true
	}
	return "", false
}

// ListFilter narrows order listings. Zero values match everything.
type ListFilter struct {
	Type      *enums.OrderType
	Status    *enums.OrderStatus
	AccountID *uuid.UUID
	Party     Party
}

// Actor is the authenticated account performing an order operation.
type Actor struct {
	AccountID uuid.UUID
	Role      enums.AccountRole
}

// SystemActor acts for the platform itself. It carries no account, so the
// account status check does not apply to it.
var SystemActor = Actor{Role: enums.AccountRoleAdmin}

// IsAdmin reports whether the actor bypasses party checks.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.AccountRoleAdmin
}

// IsSystem reports whether the actor is SystemActor.
func (a Actor) IsSystem() bool {
	return a.AccountID == uuid.Nil && a.IsAdmin()
}

// NegotiationWithdrawer moves an open negotiation to withdrawn when its
// request order is cancelled.
type NegotiationWithdrawer interface {
	WithdrawForOrder(ctx context.Context, tx *gorm.DB, requestingOrderID uuid.UUID) error
}
