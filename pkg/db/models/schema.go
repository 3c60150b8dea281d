package models

import (
	"fmt"

	"gorm.io/gorm"
)

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Account{},
		&Product{},
		&CartLine{},
		&Order{},
		&OrderLine{},
		&ExchangeNegotiation{},
		&PaymentSession{},
		&Transaction{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

// partialIndexes cannot be expressed with struct tags.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_single_success ON transactions (order_id) WHERE outcome = 'success'`,
}

// AutoMigrate creates the schema from the models. Used for sqlite development
// databases and tests; Postgres uses the goose migrations.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
