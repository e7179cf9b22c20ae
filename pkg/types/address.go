package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingAddress is the delivery address captured at checkout. It is stored
// as a JSON document column on checkout sessions and orders.
type ShippingAddress struct {
	FullName     string `json:"fullName"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	PostalCode   string `json:"postalCode"`
	City         string `json:"city"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

// Missing lists the json names of required fields that are blank.
func (a ShippingAddress) Missing() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"fullName", a.FullName},
		{"addressLine1", a.AddressLine1},
		{"postalCode", a.PostalCode},
		{"city", a.City},
		{"country", a.Country},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Normalized trims every field and upper-cases the country code.
func (a ShippingAddress) Normalized() ShippingAddress {
	return ShippingAddress{
		FullName:     strings.TrimSpace(a.FullName),
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		AddressLine2: strings.TrimSpace(a.AddressLine2),
		PostalCode:   strings.TrimSpace(a.PostalCode),
		City:         strings.TrimSpace(a.City),
		Country:      strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:        strings.TrimSpace(a.Phone),
	}
}

// Value marshals the address into a JSON document.
func (a ShippingAddress) Value() (driver.Value, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal: %w", err)
	}
	return string(payload), nil
}

// Scan decodes a JSON document produced by Value.
func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*a = ShippingAddress{}
		return nil
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: unmarshal: %w", err)
	}
	return nil
}
