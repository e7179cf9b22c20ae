// Package reconcile cross-checks cart lines against server stock and price.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/cart"
)

// StockAPI is the batched stock lookup.
type StockAPI interface {
	VariantsStock(ctx context.Context, variantIDs []string) (map[string]apiclient.Stock, error)
}

// Problem classifies a line that cannot be bought as it stands.
type Problem string

const (
	ProblemUnavailable  Problem = "unavailable"
	ProblemOutOfStock   Problem = "out_of_stock"
	ProblemInsufficient Problem = "insufficient"
)

// LineError annotates one variant.
type LineError struct {
	Problem   Problem `json:"problem"`
	Available int     `json:"available"`
}

func (e LineError) Message() string {
	switch e.Problem {
	case ProblemUnavailable:
		return "no longer available"
	case ProblemOutOfStock:
		return "out of stock"
	case ProblemInsufficient:
		return fmt.Sprintf("insufficient stock (%d available)", e.Available)
	}
	return string(e.Problem)
}

// Blocking reports whether the line must be resolved before payment.
// Insufficient lines are clamped at submission instead.
func (e LineError) Blocking() bool {
	return e.Problem == ProblemUnavailable || e.Problem == ProblemOutOfStock
}

// Result is one reconciliation outcome. Lines excludes variants the server
// no longer offers.
type Result struct {
	Lines  []cart.Line
	Errors map[string]LineError
}

// Snapshot returns the stock and price truth carried by Lines.
func (r Result) Snapshot() map[string]cart.Stock {
	out := make(map[string]cart.Stock, len(r.Lines))
	for _, line := range r.Lines {
		out[line.VariantID] = cart.Stock{Stock: line.Stock, PriceCents: line.PriceCents}
	}
	return out
}

type Reconciler struct {
	api StockAPI
}

func NewReconciler(api StockAPI) (*Reconciler, error) {
	if api == nil {
		return nil, errors.New("stock api required")
	}
	return &Reconciler{api: api}, nil
}

// Reconcile fetches truth for every line in one call and annotates drift.
// Quantities are never changed.
func (r *Reconciler) Reconcile(ctx context.Context, lines []cart.Line) (Result, error) {
	result := Result{Lines: []cart.Line{}, Errors: map[string]LineError{}}
	if len(lines) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariantID)
	}
	truth, err := r.api.VariantsStock(ctx, ids)
	if err != nil {
		return Result{}, err
	}

	for _, line := range lines {
		server, ok := truth[line.VariantID]
		switch {
		case !ok:
			result.Errors[line.VariantID] = LineError{Problem: ProblemUnavailable}
			continue
		case server.Stock <= 0:
			line.Stock = 0
			result.Errors[line.VariantID] = LineError{Problem: ProblemOutOfStock}
		case server.Stock < line.Quantity:
			line.Stock = server.Stock
			result.Errors[line.VariantID] = LineError{Problem: ProblemInsufficient, Available: server.Stock}
		default:
			line.Stock = server.Stock
			line.PriceCents = server.PriceCents
		}
		result.Lines = append(result.Lines, line)
	}
	return result, nil
}
