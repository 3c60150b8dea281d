package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartLine is a product selected by a customer with the price seen at add time.
type CartLine struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID        uuid.UUID       `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:ux_cart_lines_customer_product,priority:1"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_lines_customer_product,priority:2"`
	Quantity          decimal.Decimal `gorm:"column:quantity;type:numeric(14,3);not null"`
	UnitPriceSnapshot decimal.Decimal `gorm:"column:unit_price_snapshot;type:numeric(14,2);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *CartLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// LineTotal returns quantity times the snapshot price.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPriceSnapshot.Mul(l.Quantity)
}
