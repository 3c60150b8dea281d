package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// Order is created once by checkout, exchange request or exchange accept and
// afterwards only moves between statuses.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Type                  enums.OrderType   `gorm:"column:type;type:text;not null;index"`
	BuyerAccountID        uuid.UUID         `gorm:"column:buyer_account_id;type:uuid;not null;index"`
	SellerAccountID       *uuid.UUID        `gorm:"column:seller_account_id;type:uuid;index"`
	Status                enums.OrderStatus `gorm:"column:status;type:text;not null;index"`
	TotalMoney            decimal.Decimal   `gorm:"column:total_money;type:numeric(14,2);not null"`
	Currency              enums.Currency    `gorm:"column:currency;type:text;not null;default:'USD'"`
	LinkedExchangeOrderID *uuid.UUID        `gorm:"column:linked_exchange_order_id;type:uuid;uniqueIndex:ux_orders_linked_exchange"`
	CancelReason          *string           `gorm:"column:cancel_reason"`
	PaidAt                *time.Time        `gorm:"column:paid_at"`
	DeliveringAt          *time.Time        `gorm:"column:delivering_at"`
	CompletedAt           *time.Time        `gorm:"column:completed_at"`
	CancelledAt           *time.Time        `gorm:"column:cancelled_at"`
	Lines                 []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderLine is the frozen copy of a product taken when the order was created.
type OrderLine struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Position        int             `gorm:"column:position;not null"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	SellerAccountID uuid.UUID       `gorm:"column:seller_account_id;type:uuid;not null;index"`
	ProductName     string          `gorm:"column:product_name;not null"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Quantity        decimal.Decimal `gorm:"column:quantity;type:numeric(14,3);not null"`
	LineTotal       decimal.Decimal `gorm:"column:line_total;type:numeric(14,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
