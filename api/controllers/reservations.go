package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	"github.com/angelmondragon/pokecard-storefront/api/validators"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

type reserveRequest struct {
	VariantID  string `json:"variantId" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,min=1,max=99"`
	TTLMinutes int    `json:"ttlMinutes" validate:"omitempty,min=1,max=1440"`
}

type releaseRequest struct {
	VariantID string `json:"variantId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=0"`
}

type releaseAllResponse struct {
	Released int64 `json:"released"`
}

type reservationsResponse struct {
	Reservations []reservations.ReservationDTO `json:"reservations"`
}

// ReservationCreate holds stock for the caller, replacing any earlier hold on
// the same variant.
func ReservationCreate(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reserveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		held, err := svc.Reserve(r.Context(), reservations.ReserveInput{
			Owner:     reservations.OwnerForUser(userID),
			VariantID: uuid.MustParse(body.VariantID),
			Quantity:  body.Quantity,
			TTL:       time.Duration(body.TTLMinutes) * time.Minute,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, held)
	}
}

// ReservationRelease shrinks or drops one of the caller's holds.
func ReservationRelease(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body releaseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Release(r.Context(), reservations.OwnerForUser(userID), uuid.MustParse(body.VariantID), body.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ReservationReleaseAll(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		count, err := svc.ReleaseAll(r.Context(), reservations.OwnerForUser(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, releaseAllResponse{Released: count})
	}
}

func ReservationListMine(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListActive(r.Context(), reservations.OwnerForUser(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservationsResponse{Reservations: rows})
	}
}

// ReservationAvailability reports stock, held units and what is left to buy.
func ReservationAvailability(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		variantID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "variantId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variantId"))
			return
		}
		availability, err := svc.Availability(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}
