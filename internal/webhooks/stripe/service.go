package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/pokecard-storefront/internal/orders"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

type orderFinalizer interface {
	Finalize(ctx context.Context, input orders.FinalizeInput) (*orders.FinalizeResult, error)
	Expire(ctx context.Context, input orders.ExpireInput) (bool, error)
}

// ServiceParams bundles the webhook dependencies.
type ServiceParams struct {
	Orders orderFinalizer
	Logger *logger.Logger
}

// Service routes verified provider events to order finalisation.
type Service struct {
	orders orderFinalizer
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{orders: params.Orders, logg: logg}, nil
}

// HandleEvent applies one provider event. Unhandled event types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			s.logg.Info(ctx, "stripe.checkout.awaiting_payment")
			return nil
		}
		_, err = s.orders.Finalize(ctx, orders.FinalizeInput{
			ProviderSessionID: session.ID,
			PaymentReference:  paymentReference(session),
		})
		return err
	case stripe.EventTypeCheckoutSessionExpired:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		_, err = s.orders.Expire(ctx, orders.ExpireInput{
			ProviderSessionID: session.ID,
			Source:            orders.ExpireSourceWebhook,
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "stripe.checkout.expired.unknown_session")
			return nil
		}
		return err
	default:
		s.logg.Debug(ctx, "stripe.event.ignored")
		return nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &session, nil
}

func paymentReference(session *stripe.CheckoutSession) string {
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		return session.PaymentIntent.ID
	}
	return session.ID
}
