package orders

import (
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
)

// transitions lists the only legal status moves. Creation statuses are not
// transitions and are set by the creating operation.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusAwaitingCounterparty: {
		enums.OrderStatusPendingPayment,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefused,
	},
	enums.OrderStatusPendingPayment: {
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid:       {enums.OrderStatusDelivering},
	enums.OrderStatusDelivering: {enums.OrderStatusCompleted},
}

// CanTransition reports whether from -> to appears in the transition table.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

// timestampColumn names the column stamped when an order enters status.
func timestampColumn(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPaid:
		return "paid_at"
	case enums.OrderStatusDelivering:
		return "delivering_at"
	case enums.OrderStatusCompleted:
		return "completed_at"
	case enums.OrderStatusCancelled, enums.OrderStatusRefused:
		return "cancelled_at"
	}
	return ""
}
