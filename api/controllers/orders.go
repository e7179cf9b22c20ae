package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	"github.com/angelmondragon/pokecard-storefront/internal/orders"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

// OrderList pages through the caller's paid orders, newest first.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListForUser(r.Context(), userID, pagination.FromQuery(r.URL.Query()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func OrderByNumber(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		number := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "orderNumber")))
		order, err := svc.GetForUser(r.Context(), userID, number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
