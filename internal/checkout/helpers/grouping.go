package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/pkg/db/models"
)

// BuildOrderLines copies cart lines into order lines, in cart order, using
// the snapshot price taken when each line was added. Every product referenced
// by lines must be present in products.
func BuildOrderLines(lines []models.CartLine, products map[uuid.UUID]models.Product) ([]models.OrderLine, decimal.Decimal) {
	out := make([]models.OrderLine, 0, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		product := products[line.ProductID]
		lineTotal := line.LineTotal()
		out = append(out, models.OrderLine{
			Position:        i,
			ProductID:       line.ProductID,
			SellerAccountID: product.OwnerAccountID,
			ProductName:     product.Name,
			UnitPrice:       line.UnitPriceSnapshot,
			Quantity:        line.Quantity,
			LineTotal:       lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return out, total
}

// SharedSeller returns the seller when every line has the same one.
func SharedSeller(lines []models.OrderLine) *uuid.UUID {
	if len(lines) == 0 {
		return nil
	}
	seller := lines[0].SellerAccountID
	for _, line := range lines[1:] {
		if line.SellerAccountID != seller {
			return nil
		}
	}
	return &seller
}

// TotalsBySeller sums line totals per seller.
func TotalsBySeller(lines []models.OrderLine) map[uuid.UUID]decimal.Decimal {
	totals := make(map[uuid.UUID]decimal.Decimal)
	for _, line := range lines {
		totals[line.SellerAccountID] = totals[line.SellerAccountID].Add(line.LineTotal)
	}
	return totals
}
