package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const maxWebhookBody = 1 << 16

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// StripeWebhookGuard de-duplicates deliveries by event id.
type StripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// EventVerifier checks the Stripe-Signature header. *pkg/stripe.Client satisfies it.
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// StripeWebhook handles checkout-session lifecycle events.
func StripeWebhook(svc StripeWebhookService, verifier EventVerifier, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.ConstructEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "stripe_event_id", event.ID), "stripe.webhook.processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}
