// Package dto holds the JSON shapes returned by the HTTP controllers.
package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/internal/cart"
	"github.com/merakilabs/marketplace-backend/internal/exchange"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

type CartLine struct {
	ID                uuid.UUID       `json:"id"`
	ProductID         uuid.UUID       `json:"productId"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPriceSnapshot"`
	LineTotal         decimal.Decimal `json:"lineTotal"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type Cart struct {
	CustomerID uuid.UUID       `json:"customerId"`
	Lines      []CartLine      `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type OrderLine struct {
	ID              uuid.UUID       `json:"id"`
	Position        int             `json:"position"`
	ProductID       uuid.UUID       `json:"productId"`
	SellerAccountID uuid.UUID       `json:"sellerAccountId"`
	ProductName     string          `json:"productName"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Quantity        decimal.Decimal `json:"quantity"`
	LineTotal       decimal.Decimal `json:"lineTotal"`
}

type Order struct {
	ID                    uuid.UUID         `json:"id"`
	Type                  enums.OrderType   `json:"type"`
	BuyerAccountID        uuid.UUID         `json:"buyerAccountId"`
	SellerAccountID       *uuid.UUID        `json:"sellerAccountId,omitempty"`
	Status                enums.OrderStatus `json:"status"`
	TotalMoney            decimal.Decimal   `json:"totalMoney"`
	Currency              enums.Currency    `json:"currency"`
	LinkedExchangeOrderID *uuid.UUID        `json:"linkedExchangeOrderId,omitempty"`
	CancelReason          *string           `json:"cancelReason,omitempty"`
	Lines                 []OrderLine       `json:"lines"`
	PaidAt                *time.Time        `json:"paidAt,omitempty"`
	DeliveringAt          *time.Time        `json:"deliveringAt,omitempty"`
	CompletedAt           *time.Time        `json:"completedAt,omitempty"`
	CancelledAt           *time.Time        `json:"cancelledAt,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
}

type Negotiation struct {
	ID                    uuid.UUID              `json:"id"`
	RequestingOrderID     uuid.UUID              `json:"requestingOrderId"`
	TargetProductID       uuid.UUID              `json:"targetProductId"`
	OfferedProductID      *uuid.UUID             `json:"offeredProductId,omitempty"`
	RequesterAccountID    uuid.UUID              `json:"requesterAccountId"`
	CounterpartyAccountID uuid.UUID              `json:"counterpartyAccountId"`
	State                 enums.NegotiationState `json:"state"`
	DeliveryOrderID       *uuid.UUID             `json:"deliveryOrderId,omitempty"`
	ResolvedAt            *time.Time             `json:"resolvedAt,omitempty"`
}

type Exchange struct {
	Order         Order       `json:"order"`
	Negotiation   Negotiation `json:"negotiation"`
	DeliveryOrder *Order      `json:"deliveryOrder,omitempty"`
}

type Transaction struct {
	ID            uuid.UUID                `json:"id"`
	TransactionID uuid.UUID                `json:"transactionId"`
	OrderID       uuid.UUID                `json:"orderId"`
	AccountID     uuid.UUID                `json:"accountId"`
	Amount        decimal.Decimal          `json:"amount"`
	Outcome       enums.TransactionOutcome `json:"outcome"`
	OccurredAt    time.Time                `json:"occurredAt"`
}

type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

func NewCartLine(line models.CartLine) CartLine {
	return CartLine{
		ID:                line.ID,
		ProductID:         line.ProductID,
		Quantity:          line.Quantity,
		UnitPriceSnapshot: line.UnitPriceSnapshot,
		LineTotal:         line.LineTotal(),
		UpdatedAt:         line.UpdatedAt,
	}
}

func NewCart(c *cart.Cart) Cart {
	lines := make([]CartLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, NewCartLine(line))
	}
	return Cart{CustomerID: c.CustomerID, Lines: lines, Subtotal: c.Subtotal}
}

func NewOrder(order *models.Order) Order {
	lines := make([]OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLine{
			ID:              line.ID,
			Position:        line.Position,
			ProductID:       line.ProductID,
			SellerAccountID: line.SellerAccountID,
			ProductName:     line.ProductName,
			UnitPrice:       line.UnitPrice,
			Quantity:        line.Quantity,
			LineTotal:       line.LineTotal,
		})
	}
	return Order{
		ID:                    order.ID,
		Type:                  order.Type,
		BuyerAccountID:        order.BuyerAccountID,
		SellerAccountID:       order.SellerAccountID,
		Status:                order.Status,
		TotalMoney:            order.TotalMoney,
		Currency:              order.Currency,
		LinkedExchangeOrderID: order.LinkedExchangeOrderID,
		CancelReason:          order.CancelReason,
		Lines:                 lines,
		PaidAt:                order.PaidAt,
		DeliveringAt:          order.DeliveringAt,
		CompletedAt:           order.CompletedAt,
		CancelledAt:           order.CancelledAt,
		CreatedAt:             order.CreatedAt,
	}
}

func NewOrderPage(page pagination.Page[models.Order]) Page[Order] {
	items := make([]Order, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, NewOrder(&page.Items[i]))
	}
	return Page[Order]{Items: items, NextCursor: page.NextCursor}
}

func NewNegotiation(n *models.ExchangeNegotiation) Negotiation {
	return Negotiation{
		ID:                    n.ID,
		RequestingOrderID:     n.RequestingOrderID,
		TargetProductID:       n.TargetProductID,
		OfferedProductID:      n.OfferedProductID,
		RequesterAccountID:    n.RequesterAccountID,
		CounterpartyAccountID: n.CounterpartyAccountID,
		State:                 n.State,
		DeliveryOrderID:       n.DeliveryOrderID,
		ResolvedAt:            n.ResolvedAt,
	}
}

func NewExchange(result *exchange.Result) Exchange {
	out := Exchange{
		Order:       NewOrder(result.Order),
		Negotiation: NewNegotiation(result.Negotiation),
	}
	if result.DeliveryOrder != nil {
		delivery := NewOrder(result.DeliveryOrder)
		out.DeliveryOrder = &delivery
	}
	return out
}

func NewTransaction(txn *models.Transaction) Transaction {
	return Transaction{
		ID:            txn.ID,
		TransactionID: txn.TransactionID,
		OrderID:       txn.OrderID,
		AccountID:     txn.AccountID,
		Amount:        txn.Amount,
		Outcome:       txn.Outcome,
		OccurredAt:    txn.OccurredAt,
	}
}

func NewTransactions(rows []models.Transaction) []Transaction {
	out := make([]Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, NewTransaction(&rows[i]))
	}
	return out
}

func NewTransactionPage(page pagination.Page[models.Transaction]) Page[Transaction] {
	return Page[Transaction]{Items: NewTransactions(page.Items), NextCursor: page.NextCursor}
}
