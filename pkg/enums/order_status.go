package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order.
type OrderStatus string

const (
	OrderStatusAwaitingCounterparty OrderStatus = "awaiting_counterparty"
	OrderStatusPendingPayment       OrderStatus = "pending_payment"
	OrderStatusPaid                 OrderStatus = "paid"
	OrderStatusDelivering           OrderStatus = "delivering"
	OrderStatusCompleted            OrderStatus = "completed"
	OrderStatusCancelled            OrderStatus = "cancelled"
	OrderStatusRefused              OrderStatus = "refused"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusAwaitingCounterparty,
	OrderStatusPendingPayment,
	OrderStatusPaid,
	OrderStatusDelivering,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefused,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefused:
		return true
	}
	return false
}

// IsSettled reports whether payment for the order has been recorded.
func (s OrderStatus) IsSettled() bool {
	switch s {
	case OrderStatusPaid, OrderStatusDelivering, OrderStatusCompleted:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
