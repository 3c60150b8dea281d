package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// Account is the read model of an identity owned by the account provider.
type Account struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email       string              `gorm:"column:email;not null;uniqueIndex:ux_accounts_email"`
	DisplayName string              `gorm:"column:display_name;not null;default:''"`
	Role        enums.AccountRole   `gorm:"column:role;type:text;not null;default:'customer'"`
	Status      enums.AccountStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
