package enums

import "fmt"

// NegotiationState tracks an exchange negotiation between two accounts.
type NegotiationState string

const (
	NegotiationStateRequested NegotiationState = "requested"
	NegotiationStateAccepted  NegotiationState = "accepted"
	NegotiationStateRefused   NegotiationState = "refused"
	NegotiationStateWithdrawn NegotiationState = "withdrawn"
)

var validNegotiationStates = []NegotiationState{
	NegotiationStateRequested,
	NegotiationStateAccepted,
	NegotiationStateRefused,
	NegotiationStateWithdrawn,
}

// String implements fmt.Stringer.
func (s NegotiationState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known NegotiationState.
func (s NegotiationState) IsValid() bool {
	for _, candidate := range validNegotiationStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseNegotiationState converts raw input into a NegotiationState.
func ParseNegotiationState(value string) (NegotiationState, error) {
	for _, candidate := range validNegotiationStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid negotiation state %q", value)
}
