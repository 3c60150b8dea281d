package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// PaymentSession is the pending gateway reference created with a payment link.
// Its ID is the transaction id the gateway echoes back on callbacks.
type PaymentSession struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	PayerAccountID uuid.UUID       `gorm:"column:payer_account_id;type:uuid;not null"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency       enums.Currency  `gorm:"column:currency;type:text;not null"`
	Provider       string          `gorm:"column:provider;not null"`
	GatewayRef     string          `gorm:"column:gateway_ref;not null;index"`
	CheckoutURL    string          `gorm:"column:checkout_url;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (s *PaymentSession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
