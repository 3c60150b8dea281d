package helpers

import (
	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

// ValidateSnapshots fails with STALE_SNAPSHOT when any product behind lines
// is gone or no longer listed.
func ValidateSnapshots(lines []models.CartLine, products map[uuid.UUID]models.Product) error {
	var stale []uuid.UUID
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.IsActive {
			stale = append(stale, line.ProductID)
		}
	}
	if len(stale) > 0 {
		return pkgerrors.New(pkgerrors.CodeStaleSnapshot, "some products are no longer available").
			WithDetails(map[string]any{"productIds": stale})
	}
	return nil
}

// OrderCurrency returns the single currency shared by the products behind
// lines.
func OrderCurrency(lines []models.CartLine, products map[uuid.UUID]models.Product) (enums.Currency, error) {
	currency := enums.CurrencyUSD
	for i, line := range lines {
		c := products[line.ProductID].Currency
		if i == 0 {
			currency = c
			continue
		}
		if c != currency {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "selected lines use different currencies")
		}
	}
	return currency, nil
}
