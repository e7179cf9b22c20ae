package checkout

import (
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
)

var testLimits = Limits{MaxItems: 3, MaxQuantityPerItem: 10, MaxTotalQuantity: 15}

func TestValidateLinesAcceptsWithinLimits(t *testing.T) {
	lines := []LineInput{
		{VariantID: uuid.New(), Quantity: 10},
		{VariantID: uuid.New(), Quantity: 5},
	}
	if err := ValidateLines(lines, testLimits); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateLinesRejections(t *testing.T) {
	dup := uuid.New()
	cases := map[string][]LineInput{
		"empty":          nil,
		"too many items": {{VariantID: uuid.New(), Quantity: 1}, {VariantID: uuid.New(), Quantity: 1}, {VariantID: uuid.New(), Quantity: 1}, {VariantID: uuid.New(), Quantity: 1}},
		"zero quantity":  {{VariantID: uuid.New(), Quantity: 0}},
		"line too large": {{VariantID: uuid.New(), Quantity: 11}},
		"missing id":     {{Quantity: 1}},
		"duplicate":      {{VariantID: dup, Quantity: 1}, {VariantID: dup, Quantity: 2}},
		"total too big":  {{VariantID: uuid.New(), Quantity: 10}, {VariantID: uuid.New(), Quantity: 6}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateLines(lines, testLimits)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateLinesReportsViolations(t *testing.T) {
	err := ValidateLines([]LineInput{{VariantID: uuid.New(), Quantity: 0}}, testLimits)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	violations, ok := details["violations"].([]LineViolation)
	if !ok || len(violations) != 1 || violations[0].Problem != "quantity must be at least 1" {
		t.Fatalf("unexpected violations %+v", details["violations"])
	}
}

func TestResolveRedirect(t *testing.T) {
	allowed := []string{"https://pokecard.example/", "http://localhost:5173"}

	got, err := ResolveRedirect("successUrl", "", "https://pokecard.example/merci", allowed)
	if err != nil || got != "https://pokecard.example/merci" {
		t.Fatalf("expected fallback, got %q %v", got, err)
	}

	got, err = ResolveRedirect("successUrl", "https://POKECARD.example/ok?id=1", "", allowed)
	if err != nil || got != "https://POKECARD.example/ok?id=1" {
		t.Fatalf("expected allowed url, got %q %v", got, err)
	}

	if _, err := ResolveRedirect("cancelUrl", "https://evil.example/cart", "", allowed); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected origin rejection, got %v", err)
	}
	if _, err := ResolveRedirect("cancelUrl", "/cart", "", allowed); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected relative url rejection, got %v", err)
	}
}
