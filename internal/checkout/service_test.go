package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/internal/cart"
	"github.com/merakilabs/marketplace-backend/internal/catalog"
	"github.com/merakilabs/marketplace-backend/internal/ledger"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/dbtest"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/metrics"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
)

// failingCart deletes nothing so the checkout transaction must roll back.
type failingCart struct {
	cart.CartRepository
	err error
}

func (f failingCart) WithTx(tx *gorm.DB) cart.CartRepository {
	return failingCart{CartRepository: f.CartRepository.WithTx(tx), err: f.err}
}

func (f failingCart) DeleteLines(ctx context.Context, customerID uuid.UUID, lineIDs []uuid.UUID) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 0, nil
}

type fixture struct {
	conn     *db.Client
	accounts accounts.Resolver
	cart     cart.Service
	repo     cart.CartRepository
	outbox   *outbox.Repository
	metrics  *metrics.Metrics
	buyer    models.Account
	sellerA  models.Account
	sellerB  models.Account
	lamp     models.Product
	desk     models.Product
	chair    models.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	sellerA := dbtest.SeedAccount(t, conn.DB(), "a@example.com")
	sellerB := dbtest.SeedAccount(t, conn.DB(), "b@example.com")
	repo := cart.NewRepository(conn.DB())
	resolver, err := accounts.NewService(accounts.NewRepository(conn.DB()))
	require.NoError(t, err)
	cartSvc, err := cart.NewService(repo, catalog.NewRepository(conn.DB()), resolver, keylock.New())
	require.NoError(t, err)
	return fixture{
		conn:     conn,
		accounts: resolver,
		cart:     cartSvc,
		repo:     repo,
		outbox:   outbox.NewRepository(conn.DB()),
		metrics:  metrics.New(),
		buyer:    dbtest.SeedAccount(t, conn.DB(), "buyer@example.com"),
		sellerA:  sellerA,
		sellerB:  sellerB,
		lamp:     dbtest.SeedProduct(t, conn.DB(), sellerA.ID, "lamp", "10.00"),
		desk:     dbtest.SeedProduct(t, conn.DB(), sellerA.ID, "desk", "120.00"),
		chair:    dbtest.SeedProduct(t, conn.DB(), sellerB.ID, "chair", "45.50"),
	}
}

func (f fixture) service(t *testing.T, repo cart.CartRepository) Service {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(f.conn.DB()))
	require.NoError(t, err)
	svc, err := NewService(f.conn, repo, orders.NewRepository(f.conn.DB()), catalog.NewRepository(f.conn.DB()),
		f.accounts, ledgerSvc, outbox.NewService(f.outbox, nil), keylock.New(), f.metrics, nil)
	require.NoError(t, err)
	return svc
}

func (f fixture) add(t *testing.T, product models.Product, qty int64) models.CartLine {
	t.Helper()
	line, err := f.cart.Add(context.Background(), f.buyer.ID, product.ID, decimal.NewFromInt(qty))
	require.NoError(t, err)
	return *line
}

func TestCheckoutSingleSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lamp := f.add(t, f.lamp, 2)
	desk := f.add(t, f.desk, 1)
	chair := f.add(t, f.chair, 1)

	order, err := f.service(t, f.repo).Checkout(ctx, f.buyer.ID, []uuid.UUID{lamp.ID, desk.ID, uuid.New()})
	require.NoError(t, err)
	require.Equal(t, enums.OrderTypeBuy, order.Type)
	require.Equal(t, enums.OrderStatusPendingPayment, order.Status)
	require.NotNil(t, order.SellerAccountID)
	require.Equal(t, f.sellerA.ID, *order.SellerAccountID)
	require.True(t, order.TotalMoney.Equal(decimal.NewFromInt(140)), "total %s", order.TotalMoney)
	require.Len(t, order.Lines, 2)
	require.Equal(t, f.lamp.ID, order.Lines[0].ProductID)

	remaining, err := f.cart.List(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, remaining.Lines, 1)
	require.Equal(t, chair.ID, remaining.Lines[0].ID)

	events, err := f.outbox.ListByAggregate(ctx, enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderCreated, events[0].EventType)
}

func TestCheckoutUsesSnapshotPriceAndMultiSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lamp := f.add(t, f.lamp, 1)
	chair := f.add(t, f.chair, 2)
	require.NoError(t, f.conn.DB().Model(&models.Product{}).Where("id = ?", f.lamp.ID).
		Update("price", decimal.RequireFromString("99")).Error)

	order, err := f.service(t, f.repo).Checkout(ctx, f.buyer.ID, []uuid.UUID{lamp.ID, chair.ID})
	require.NoError(t, err)
	require.Nil(t, order.SellerAccountID)
	require.True(t, order.TotalMoney.Equal(decimal.NewFromInt(101)), "total %s", order.TotalMoney)
}

func TestCheckoutEmptySelection(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, f.repo)

	_, err := svc.Checkout(context.Background(), f.buyer.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyOrder))
	_, err = svc.Checkout(context.Background(), f.buyer.ID, []uuid.UUID{uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyOrder))
}

func TestCheckoutSettlesFreeOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gift := dbtest.SeedProduct(t, f.conn.DB(), f.sellerA.ID, "gift", "0.00")
	line := f.add(t, gift, 1)

	order, err := f.service(t, f.repo).Checkout(ctx, f.buyer.ID, []uuid.UUID{line.ID})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)

	var txns []models.Transaction
	require.NoError(t, f.conn.DB().Where("order_id = ?", order.ID).Find(&txns).Error)
	require.Len(t, txns, 1)
	require.True(t, txns[0].Amount.IsZero())
	require.Equal(t, enums.TransactionOutcomeSuccess, txns[0].Outcome)
	require.Equal(t, f.buyer.ID, txns[0].AccountID)

	events, err := f.outbox.ListByAggregate(ctx, enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	types := make([]enums.OutboxEventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.EventType)
	}
	require.ElementsMatch(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderPaid}, types)
}

func TestCheckoutRejectsInactiveCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lamp := f.add(t, f.lamp, 1)
	dbtest.SetAccountStatus(t, f.conn.DB(), f.buyer.ID, enums.AccountStatusClosed)

	_, err := f.service(t, f.repo).Checkout(ctx, f.buyer.ID, []uuid.UUID{lamp.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)

	var count int64
	require.NoError(t, f.conn.DB().Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
	remaining, err := f.cart.List(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, remaining.Lines, 1)
}

func TestCheckoutStaleProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lamp := f.add(t, f.lamp, 1)
	chair := f.add(t, f.chair, 1)
	dbtest.Deactivate(t, f.conn.DB(), f.chair.ID)

	_, err := f.service(t, f.repo).Checkout(ctx, f.buyer.ID, []uuid.UUID{lamp.ID, chair.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStaleSnapshot))

	var count int64
	require.NoError(t, f.conn.DB().Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
	remaining, err := f.cart.List(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, remaining.Lines, 2)
}

func TestCheckoutRollsBackWhenCartClearFails(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code pkgerrors.Code
	}{
		{name: "partial delete", code: pkgerrors.CodeConflict},
		{name: "storage failure", err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("disk gone"), "cart line storage failure"), code: pkgerrors.CodeDependency},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			lamp := f.add(t, f.lamp, 3)

			_, err := f.service(t, failingCart{CartRepository: f.repo, err: tc.err}).Checkout(ctx, f.buyer.ID, []uuid.UUID{lamp.ID})
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)

			var orderCount, lineCount, eventCount int64
			require.NoError(t, f.conn.DB().Model(&models.Order{}).Count(&orderCount).Error)
			require.NoError(t, f.conn.DB().Model(&models.OrderLine{}).Count(&lineCount).Error)
			require.NoError(t, f.conn.DB().Model(&models.OutboxEvent{}).Count(&eventCount).Error)
			require.Zero(t, orderCount)
			require.Zero(t, lineCount)
			require.Zero(t, eventCount)

			remaining, err := f.cart.List(ctx, f.buyer.ID)
			require.NoError(t, err)
			require.Len(t, remaining.Lines, 1)
			require.True(t, remaining.Lines[0].Quantity.Equal(decimal.NewFromInt(3)))
		})
	}
}
