package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pokecard-storefront/api/middleware"
	"github.com/angelmondragon/pokecard-storefront/api/responses"
	"github.com/angelmondragon/pokecard-storefront/api/validators"
	checkoutsvc "github.com/angelmondragon/pokecard-storefront/internal/checkout"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const maxIdempotencyKeyLength = 255

// CheckoutCreateSession opens (or replays) a hosted payment session for the
// caller. A replay of the same Idempotency-Key answers 200 instead of 201.
func CheckoutCreateSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required"))
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is too long"))
			return
		}

		var body checkoutsvc.CreateSessionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSession(r.Context(), checkoutsvc.CreateSessionInput{
			UserID:         userID,
			UserEmail:      middleware.EmailFromContext(r.Context()),
			IdempotencyKey: key,
			Request:        body,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithCheckoutSessionID(r.Context(), result.CheckoutID), "checkout.session.created")
		}
		if result.Replayed {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// CheckoutGetSession is polled by the success page.
func CheckoutGetSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.GetSession(r.Context(), userID, chi.URLParam(r, "sessionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
