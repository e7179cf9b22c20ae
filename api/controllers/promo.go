package controllers

import (
	"net/http"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	"github.com/angelmondragon/pokecard-storefront/api/validators"
	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

type promoValidateRequest struct {
	Code          string `json:"code" validate:"required,max=64"`
	SubtotalCents int    `json:"subtotalCents" validate:"gte=0"`
}

// PromoValidate always answers 200; a rejected code is valid=false.
func PromoValidate(svc promo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}

		var body promoValidateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Validate(r.Context(), body.Code, body.SubtotalCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
