package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
)

// Limits bounds the size of one checkout request.
type Limits struct {
	MaxItems           int
	MaxQuantityPerItem int
	MaxTotalQuantity   int
}

// LimitsFromConfig reads the limits from the checkout configuration.
func LimitsFromConfig(cfg config.CheckoutConfig) Limits {
	return Limits{
		MaxItems:           cfg.MaxItems,
		MaxQuantityPerItem: cfg.MaxQuantityPerItem,
		MaxTotalQuantity:   cfg.MaxTotalQuantity,
	}
}

// LineInput is one requested line before any stock check.
type LineInput struct {
	VariantID uuid.UUID
	Quantity  int
}

// LineViolation explains why one line was refused.
type LineViolation struct {
	Index     int    `json:"index"`
	VariantID string `json:"variantId,omitempty"`
	Problem   string `json:"problem"`
}

// ValidateLines enforces item count, per-line and total quantity bounds and
// rejects duplicate variants.
func ValidateLines(lines []LineInput, limits Limits) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if limits.MaxItems > 0 && len(lines) > limits.MaxItems {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d items per checkout", limits.MaxItems))
	}

	var violations []LineViolation
	seen := make(map[uuid.UUID]struct{}, len(lines))
	total := 0
	for i, line := range lines {
		switch {
		case line.VariantID == uuid.Nil:
			violations = append(violations, LineViolation{Index: i, Problem: "variantId is required"})
			continue
		case line.Quantity < 1:
			violations = append(violations, LineViolation{Index: i, VariantID: line.VariantID.String(), Problem: "quantity must be at least 1"})
		case limits.MaxQuantityPerItem > 0 && line.Quantity > limits.MaxQuantityPerItem:
			violations = append(violations, LineViolation{Index: i, VariantID: line.VariantID.String(), Problem: fmt.Sprintf("quantity must be at most %d", limits.MaxQuantityPerItem)})
		}
		if _, dup := seen[line.VariantID]; dup {
			violations = append(violations, LineViolation{Index: i, VariantID: line.VariantID.String(), Problem: "duplicate variant"})
		}
		seen[line.VariantID] = struct{}{}
		total += line.Quantity
	}
	if len(violations) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d invalid item(s)", len(violations))).WithDetails(map[string]any{
			"violations": violations,
		})
	}
	if limits.MaxTotalQuantity > 0 && total > limits.MaxTotalQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("total quantity must be at most %d", limits.MaxTotalQuantity))
	}
	return nil
}

// ResolveRedirect returns raw when its origin is allowed, fallback when raw
// is blank, and a validation error otherwise.
func ResolveRedirect(field, raw, fallback string, allowedOrigins []string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, field+" must be an absolute url").WithDetails(map[string]string{field: "is invalid"})
	}
	origin := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, allowed := range allowedOrigins {
		if strings.ToLower(strings.TrimRight(strings.TrimSpace(allowed), "/")) == origin {
			return raw, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, field+" origin is not allowed").WithDetails(map[string]string{field: "origin is not allowed"})
}
