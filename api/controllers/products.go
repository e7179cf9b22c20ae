package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	"github.com/angelmondragon/pokecard-storefront/api/validators"
	"github.com/angelmondragon/pokecard-storefront/internal/catalog"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

// ProductList serves the paginated catalog browse.
func ProductList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		query := r.URL.Query()
		result, err := svc.ListProducts(r.Context(), catalog.ListInput{
			Category:   query.Get("category"),
			Search:     validators.SanitizeString(query.Get("search"), 100),
			Pagination: pagination.FromQuery(query),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ProductBySlug(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "slug is required"))
			return
		}
		product, err := svc.GetProduct(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

type variantStockRequest struct {
	VariantIDs []string `json:"variantIds" validate:"required,min=1,max=100,dive,uuid"`
}

type variantStockResponse struct {
	Stocks map[string]catalog.StockDTO `json:"stocks"`
}

// VariantStock answers the client's batched revalidation lookup.
func VariantStock(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		var body variantStockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(body.VariantIDs))
		for _, raw := range body.VariantIDs {
			ids = append(ids, uuid.MustParse(raw))
		}

		owner := ""
		if userID, err := userIDFromContext(r); err == nil {
			owner = reservations.OwnerForUser(userID)
		}
		stocks, err := svc.VariantStocks(r.Context(), ids, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, variantStockResponse{Stocks: stocks})
	}
}
