// Package shipping enumerates the delivery methods the storefront offers.
// Both the API and the shopper client read the same table so prices agree.
package shipping

import "strings"

// Method is one enabled delivery option.
type Method struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	PriceCents  int    `json:"priceCents"`
	Description string `json:"description"`
}

const (
	CodeMondialRelay  = "MONDIAL_RELAY"
	CodeColissimoHome = "COLISSIMO_HOME"
)

// enabled is ordered for display; the first entry is the default.
var enabled = []Method{
	{
		Code:        CodeMondialRelay,
		Label:       "Point Relais (Mondial Relay)",
		PriceCents:  490,
		Description: "Livraison en point relais sous 3 à 5 jours ouvrés",
	},
	{
		Code:        CodeColissimoHome,
		Label:       "Colissimo à domicile",
		PriceCents:  790,
		Description: "Livraison à domicile sous 2 à 3 jours ouvrés",
	},
}

// List returns a copy of the enabled methods in display order.
func List() []Method {
	out := make([]Method, len(enabled))
	copy(out, enabled)
	return out
}

// Default returns the first enabled method.
func Default() Method {
	return enabled[0]
}

// Lookup finds a method by code, ignoring case and surrounding spaces.
func Lookup(code string) (Method, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	for _, method := range enabled {
		if method.Code == normalized {
			return method, true
		}
	}
	return Method{}, false
}

// Resolve is Lookup with the default method as fallback for unknown codes.
func Resolve(code string) Method {
	if method, ok := Lookup(code); ok {
		return method
	}
	return Default()
}
