package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db/dbtest"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

func settle(t *testing.T, conn *gorm.DB, order models.Order, outcome enums.TransactionOutcome) {
	t.Helper()
	require.NoError(t, conn.Create(&models.Transaction{
		TransactionID: uuid.New(),
		OrderID:       order.ID,
		AccountID:     order.BuyerAccountID,
		Amount:        order.TotalMoney,
		Outcome:       outcome,
		OccurredAt:    time.Now().UTC(),
	}).Error)
}

func multiSellerOrder(t *testing.T, conn *gorm.DB, buyer uuid.UUID, shares map[uuid.UUID]string) models.Order {
	t.Helper()
	order := models.Order{
		Type:           enums.OrderTypeBuy,
		BuyerAccountID: buyer,
		Status:         enums.OrderStatusPaid,
		Currency:       enums.CurrencyUSD,
		TotalMoney:     decimal.Zero,
	}
	position := 0
	for seller, amount := range shares {
		total := decimal.RequireFromString(amount)
		order.TotalMoney = order.TotalMoney.Add(total)
		order.Lines = append(order.Lines, models.OrderLine{
			Position:        position,
			ProductID:       uuid.New(),
			SellerAccountID: seller,
			ProductName:     "share",
			UnitPrice:       total,
			Quantity:        decimal.NewFromInt(1),
			LineTotal:       total,
		})
		position++
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}

func TestCounts(t *testing.T) {
	t.Parallel()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(), conn)
	require.NoError(t, err)
	ctx := context.Background()

	alice := dbtest.SeedAccount(t, conn.DB(), "alice@example.com")
	bob := dbtest.SeedAccount(t, conn.DB(), "bob@example.com")
	seller := dbtest.SeedAccount(t, conn.DB(), "seller@example.com")

	dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSeed{Buyer: alice.ID, Seller: seller.ID, Total: "10"})
	dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSeed{Buyer: alice.ID, Seller: seller.ID, Total: "10", Status: enums.OrderStatusPaid})
	dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSeed{Buyer: bob.ID, Seller: seller.ID, Total: "10", Status: enums.OrderStatusPaid})
	dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSeed{
		Type:   enums.OrderTypeExchangeRequest,
		Buyer:  bob.ID,
		Seller: seller.ID,
		Total:  "0",
		Status: enums.OrderStatusAwaitingCounterparty,
	})

	all, err := svc.CountAll(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 4, all)

	paid, err := svc.CountByStatus(ctx, enums.OrderStatusPaid)
	require.NoError(t, err)
	require.EqualValues(t, 2, paid)

	exchanges, err := svc.CountByType(ctx, enums.OrderTypeExchangeRequest)
	require.NoError(t, err)
	require.EqualValues(t, 1, exchanges)

	aliceAll, err := svc.CountForCustomer(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, aliceAll)

	alicePending, err := svc.CountForCustomerByStatus(ctx, alice.ID, enums.OrderStatusPendingPayment)
	require.NoError(t, err)
	require.EqualValues(t, 1, alicePending)

	_, err = svc.CountByStatus(ctx, enums.OrderStatus("lost"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.CountByType(ctx, enums.OrderType("gift"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.CountForCustomer(ctx, uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTotalEarningsCountsOnlySettledOrders(t *testing.T) {
	t.Parallel()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(), conn)
	require.NoError(t, err)
	ctx := context.Background()

	buyer := dbtest.SeedAccount(t, conn.DB(), "buyer@example.com")
	seller := dbtest.SeedAccount(t, conn.DB(), "seller@example.com")
	other := dbtest.SeedAccount(t, conn.DB(), "other@example.com")

	settled := dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSeed{Buyer: buyer.ID, Seller: seller.ID, Total: "25.50", Status: enums.OrderStatusPaid})
	settle(t, conn.DB(), settled, enums.TransactionOutcomeSuccess)

	failedOnly := dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSeed{Buyer: buyer.ID, Seller: seller.ID, Total: "99"})
	settle(t, conn.DB(), failedOnly, enums.TransactionOutcomeFailed)

	dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSeed{Buyer: buyer.ID, Seller: seller.ID, Total: "40"})

	shared := multiSellerOrder(t, conn.DB(), buyer.ID, map[uuid.UUID]string{seller.ID: "4.50", other.ID: "7"})
	settle(t, conn.DB(), shared, enums.TransactionOutcomeSuccess)

	earned, err := svc.TotalEarningsForAccount(ctx, seller.ID)
	require.NoError(t, err)
	require.True(t, earned.Equal(decimal.RequireFromString("30")), "got %s", earned)

	otherEarned, err := svc.TotalEarningsForAccount(ctx, other.ID)
	require.NoError(t, err)
	require.True(t, otherEarned.Equal(decimal.NewFromInt(7)), "got %s", otherEarned)

	none, err := svc.TotalEarningsForAccount(ctx, buyer.ID)
	require.NoError(t, err)
	require.True(t, none.IsZero())
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewService(nil, nil)
	require.Error(t, err)
}
