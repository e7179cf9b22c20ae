package enums

import (
	"fmt"
	"strings"
)

// PromoType selects how a promo code's value is applied to a subtotal.
type PromoType string

const (
	PromoTypePercentage PromoType = "PERCENTAGE"
	PromoTypeFixed      PromoType = "FIXED"
)

var validPromoTypes = []PromoType{
	PromoTypePercentage,
	PromoTypeFixed,
}

// String implements fmt.Stringer.
func (p PromoType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PromoType.
func (p PromoType) IsValid() bool {
	for _, candidate := range validPromoTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePromoType converts raw input into a PromoType, ignoring case.
func ParsePromoType(value string) (PromoType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPromoTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid promo type %q", value)
}
