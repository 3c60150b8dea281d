package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/merakilabs/marketplace-backend/pkg/db/dbtest"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

func TestGetProducts(t *testing.T) {
	conn := dbtest.Open(t)
	owner := dbtest.SeedAccount(t, conn.DB(), "seller@example.com")
	lamp := dbtest.SeedProduct(t, conn.DB(), owner.ID, "lamp", "12.50")
	chair := dbtest.SeedProduct(t, conn.DB(), owner.ID, "chair", "40.00")
	dbtest.Deactivate(t, conn.DB(), chair.ID)

	repo := NewRepository(conn.DB())
	ctx := context.Background()

	got, err := repo.GetProduct(ctx, chair.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.Equal(t, owner.ID, got.OwnerAccountID)

	_, err = repo.GetProduct(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	byID, err := repo.GetProducts(ctx, []uuid.UUID{lamp.ID, chair.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	require.Equal(t, "lamp", byID[lamp.ID].Name)
	require.True(t, byID[lamp.ID].Price.Equal(lamp.Price))
}
