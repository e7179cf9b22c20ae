package controllers

import (
	"net/http"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	"github.com/angelmondragon/pokecard-storefront/internal/shipping"
)

func ShippingMethods() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]any{"methods": shipping.List()})
	}
}
