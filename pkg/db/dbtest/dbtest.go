// Package dbtest opens isolated sqlite databases carrying the full schema for
// repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// Open returns a fresh in-memory database with every table created. The pool
// is pinned to one connection so concurrent callers queue instead of hitting
// sqlite table locks.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(conn))
	return db.NewFromGorm(conn)
}

// SeedAccount inserts an active customer account.
func SeedAccount(t testing.TB, conn *gorm.DB, email string) models.Account {
	t.Helper()
	account := models.Account{
		Email:       email,
		DisplayName: email,
		Role:        enums.AccountRoleCustomer,
		Status:      enums.AccountStatusActive,
	}
	require.NoError(t, conn.Create(&account).Error)
	return account
}

// SeedProduct inserts an active product listed by owner.
func SeedProduct(t testing.TB, conn *gorm.DB, owner uuid.UUID, name, price string) models.Product {
	t.Helper()
	product := models.Product{
		OwnerAccountID: owner,
		Name:           name,
		Price:          decimal.RequireFromString(price),
		Currency:       enums.CurrencyUSD,
		IsActive:       true,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

// Deactivate marks a product as no longer listed.
func Deactivate(t testing.TB, conn *gorm.DB, productID uuid.UUID) {
	t.Helper()
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", productID).Update("is_active", false).Error)
}

// SetAccountStatus overwrites an account's lifecycle status.
func SetAccountStatus(t testing.TB, conn *gorm.DB, accountID uuid.UUID, status enums.AccountStatus) {
	t.Helper()
	require.NoError(t, conn.Model(&models.Account{}).Where("id = ?", accountID).Update("status", status).Error)
}

// OrderSeed describes a single-line order written straight to the database.
type OrderSeed struct {
	Type    enums.OrderType
	Buyer   uuid.UUID
	Seller  uuid.UUID
	Product uuid.UUID
	Status  enums.OrderStatus
	Total   string
}

// SeedOrder inserts an order with one line priced at the seed total. Type
// defaults to buy and status to pending_payment.
func SeedOrder(t testing.TB, conn *gorm.DB, seed OrderSeed) models.Order {
	t.Helper()
	if seed.Type == "" {
		seed.Type = enums.OrderTypeBuy
	}
	if seed.Status == "" {
		seed.Status = enums.OrderStatusPendingPayment
	}
	if seed.Product == uuid.Nil {
		seed.Product = uuid.New()
	}
	total := decimal.RequireFromString(seed.Total)
	seller := seed.Seller
	order := models.Order{
		Type:            seed.Type,
		BuyerAccountID:  seed.Buyer,
		SellerAccountID: &seller,
		Status:          seed.Status,
		TotalMoney:      total,
		Currency:        enums.CurrencyUSD,
		Lines: []models.OrderLine{{
			Position:        0,
			ProductID:       seed.Product,
			SellerAccountID: seller,
			ProductName:     "seeded",
			UnitPrice:       total,
			Quantity:        decimal.NewFromInt(1),
			LineTotal:       total,
		}},
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}
