package enums

import "fmt"

// CheckoutSessionStatus tracks a payment-provider checkout session.
type CheckoutSessionStatus string

const (
	CheckoutSessionOpen      CheckoutSessionStatus = "open"
	CheckoutSessionCompleted CheckoutSessionStatus = "completed"
	CheckoutSessionExpired   CheckoutSessionStatus = "expired"
)

var validCheckoutSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionOpen,
	CheckoutSessionCompleted,
	CheckoutSessionExpired,
}

// String implements fmt.Stringer.
func (s CheckoutSessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutSessionStatus.
func (s CheckoutSessionStatus) IsValid() bool {
	for _, candidate := range validCheckoutSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s CheckoutSessionStatus) IsTerminal() bool {
	return s == CheckoutSessionCompleted || s == CheckoutSessionExpired
}

// ParseCheckoutSessionStatus converts raw input into a CheckoutSessionStatus.
func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	for _, candidate := range validCheckoutSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout session status %q", value)
}
