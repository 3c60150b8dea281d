package enums

import "fmt"

// TransactionOutcome records how a payment attempt ended.
type TransactionOutcome string

const (
	TransactionOutcomeSuccess TransactionOutcome = "success"
	TransactionOutcomeFailed  TransactionOutcome = "failed"
)

var validTransactionOutcomes = []TransactionOutcome{
	TransactionOutcomeSuccess,
	TransactionOutcomeFailed,
}

// String implements fmt.Stringer.
func (o TransactionOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known TransactionOutcome.
func (o TransactionOutcome) IsValid() bool {
	for _, candidate := range validTransactionOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseTransactionOutcome converts raw input into a TransactionOutcome.
func ParseTransactionOutcome(value string) (TransactionOutcome, error) {
	for _, candidate := range validTransactionOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction outcome %q", value)
}
