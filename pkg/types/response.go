package types

// SuccessEnvelope wraps every successful API payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every failed API payload.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// StockConflict is one entry of an INSUFFICIENT_STOCK error's details.
type StockConflict struct {
	VariantID string `json:"variantId"`
	Reason    string `json:"reason"`
	Available int    `json:"available"`
}

// Stock conflict reasons.
const (
	StockReasonNotAvailable      = "NOT_AVAILABLE"
	StockReasonOutOfStock        = "OUT_OF_STOCK"
	StockReasonInsufficientStock = "INSUFFICIENT_STOCK"
)
