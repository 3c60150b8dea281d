package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

// Account is what the order engine needs to know about an identity.
type Account struct {
	ID     uuid.UUID
	Email  string
	Role   enums.AccountRole
	Status enums.AccountStatus
}

// IsAdmin reports whether the account may act on any order.
func (a Account) IsAdmin() bool {
	return a.Role == enums.AccountRoleAdmin
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Resolver resolves accounts and rejects ones that may not transact.
type Resolver interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ResolveByEmail(ctx context.Context, email string) (*Account, error)
}

type service struct {
	repo repository
}

func NewService(repo repository) (Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("account repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ResolveByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toAccount(row)
}

func (s *service) ResolveByEmail(ctx context.Context, email string) (*Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	row, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return toAccount(row)
}

func toAccount(row *models.Account) (*Account, error) {
	if row.Status != enums.AccountStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is not active").
			WithDetails(map[string]any{"status": row.Status})
	}
	return &Account{
		ID:     row.ID,
		Email:  row.Email,
		Role:   row.Role,
		Status: row.Status,
	}, nil
}
