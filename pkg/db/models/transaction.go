package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// Transaction is an append-only ledger row recording a payment outcome.
type Transaction struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID                `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:ux_transactions_reference_outcome,priority:1"`
	OrderID       uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	AccountID     uuid.UUID                `gorm:"column:account_id;type:uuid;not null;index"`
	Amount        decimal.Decimal          `gorm:"column:amount;type:numeric(14,2);not null"`
	Outcome       enums.TransactionOutcome `gorm:"column:outcome;type:text;not null;uniqueIndex:ux_transactions_reference_outcome,priority:2"`
	OccurredAt    time.Time                `gorm:"column:occurred_at;not null"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	return nil
}
