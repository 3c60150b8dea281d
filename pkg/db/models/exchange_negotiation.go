package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// ExchangeNegotiation tracks the counterparty decision for an exchange request.
type ExchangeNegotiation struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	RequestingOrderID     uuid.UUID              `gorm:"column:requesting_order_id;type:uuid;not null;uniqueIndex:ux_negotiations_requesting_order"`
	OfferedProductID      *uuid.UUID             `gorm:"column:offered_product_id;type:uuid"`
	TargetProductID       uuid.UUID              `gorm:"column:target_product_id;type:uuid;not null"`
	RequesterAccountID    uuid.UUID              `gorm:"column:requester_account_id;type:uuid;not null;index"`
	CounterpartyAccountID uuid.UUID              `gorm:"column:counterparty_account_id;type:uuid;not null;index"`
	State                 enums.NegotiationState `gorm:"column:state;type:text;not null"`
	DeliveryOrderID       *uuid.UUID             `gorm:"column:delivery_order_id;type:uuid"`
	ResolvedAt            *time.Time             `gorm:"column:resolved_at"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (n *ExchangeNegotiation) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
