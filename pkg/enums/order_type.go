package enums

import "fmt"

// OrderType distinguishes direct purchases from the two sides of an exchange.
type OrderType string

const (
	OrderTypeBuy              OrderType = "buy"
	OrderTypeExchangeRequest  OrderType = "exchange_request"
	OrderTypeExchangeDelivery OrderType = "exchange_delivery"
)

var validOrderTypes = []OrderType{
	OrderTypeBuy,
	OrderTypeExchangeRequest,
	OrderTypeExchangeDelivery,
}

// String implements fmt.Stringer.
func (t OrderType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OrderType.
func (t OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsExchange reports whether the order belongs to an exchange pair.
func (t OrderType) IsExchange() bool {
	return t == OrderTypeExchangeRequest || t == OrderTypeExchangeDelivery
}

// ParseOrderType converts raw input into an OrderType.
func ParseOrderType(value string) (OrderType, error) {
	for _, candidate := range validOrderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order type %q", value)
}
