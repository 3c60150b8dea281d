package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout or an exchange creates an order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	Type            enums.OrderType `json:"type"`
	BuyerAccountID  uuid.UUID       `json:"buyer_account_id"`
	SellerAccountID *uuid.UUID      `json:"seller_account_id,omitempty"`
	TotalMoney      decimal.Decimal `json:"total_money"`
	LineCount       int             `json:"line_count"`
}

// OrderStatusChangedEvent covers delivering, completed and cancelled moves.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Reason  string            `json:"reason,omitempty"`
}

// ExchangeEvent describes a negotiation decision.
type ExchangeEvent struct {
	NegotiationID         uuid.UUID              `json:"negotiation_id"`
	RequestingOrderID     uuid.UUID              `json:"requesting_order_id"`
	DeliveryOrderID       *uuid.UUID             `json:"delivery_order_id,omitempty"`
	RequesterAccountID    uuid.UUID              `json:"requester_account_id"`
	CounterpartyAccountID uuid.UUID              `json:"counterparty_account_id"`
	State                 enums.NegotiationState `json:"state"`
}

// PaymentEvent describes a reconciled payment notification.
type PaymentEvent struct {
	OrderID       uuid.UUID                `json:"order_id"`
	TransactionID uuid.UUID                `json:"transaction_id"`
	AccountID     uuid.UUID                `json:"account_id"`
	Amount        decimal.Decimal          `json:"amount"`
	Outcome       enums.TransactionOutcome `json:"outcome,omitempty"`
	Expected      *decimal.Decimal         `json:"expected,omitempty"`
}
