package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/internal/catalog"
	"github.com/angelmondragon/pokecard-storefront/internal/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/metrics"
	"github.com/angelmondragon/pokecard-storefront/pkg/outbox"
	"github.com/angelmondragon/pokecard-storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

const orderNumberPrefix = "PKC"

// ExpireSource values recorded on checkout.expired events.
const (
	ExpireSourceWebhook = "webhook"
	ExpireSourceSweep   = "sweep"
)

var errLostFinalizeRace = errors.New("checkout session completed concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service turns paid checkout sessions into orders.
type Service interface {
	Finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error)
	Expire(ctx context.Context, input ExpireInput) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	GetForUser(ctx context.Context, userID uuid.UUID, orderNumber string) (*OrderDTO, error)
}

// ServiceParams bundles the order dependencies.
type ServiceParams struct {
	DB      txRunner
	Orders  *Repository
	Outbox  outbox.Emitter
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
}

type service struct {
	db      txRunner
	orders  *Repository
	outbox  outbox.Emitter
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:      params.DB,
		orders:  params.Orders,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Finalize records the order for a paid provider session. Stock is taken
// with conditional decrements; if any line can no longer be covered the
// whole transaction rolls back. Replays return the existing order.
func (s *service) Finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error) {
	providerID := strings.TrimSpace(input.ProviderSessionID)
	if providerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider session id is required")
	}
	ctx = s.logg.WithField(ctx, "provider_session_id", providerID)

	var result *FinalizeResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := checkout.NewRepository(tx)
		session, err := sessions.FindByProviderID(ctx, providerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
		}

		if session.Status == enums.CheckoutSessionCompleted {
			existing, err := s.orders.WithTx(tx).FindByCheckoutSession(ctx, session.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing order")
			}
			result = &FinalizeResult{OrderID: existing.ID.String(), OrderNumber: existing.OrderNumber, AlreadyFinalized: true}
			return nil
		}

		variants := catalog.NewRepository(tx)
		for _, item := range session.Items {
			ok, err := variants.DecrementStock(ctx, item.VariantID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "stock no longer covers the paid session").
					WithDetails(map[string]any{"variantId": item.VariantID.String(), "quantity": item.Quantity})
			}
		}

		now := s.now()
		order := buildOrder(session, input.PaymentReference, now)
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		if session.PromoCode != nil && *session.PromoCode != "" {
			if err := promo.NewRepository(tx).IncrementUsage(ctx, *session.PromoCode); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment promo usage")
			}
		}

		marked, err := sessions.MarkCompleted(ctx, session.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete checkout session")
		}
		if !marked {
			return errLostFinalizeRace
		}
		if err := releaseHolds(ctx, tx, session); err != nil {
			return err
		}

		if err := s.outbox.EmitIfNotExists(ctx, tx, orderPaidEvent(session, order, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
		}

		result = &FinalizeResult{OrderID: order.ID.String(), OrderNumber: order.OrderNumber}
		return nil
	})

	if errors.Is(err, errLostFinalizeRace) {
		result, err = s.existingResult(ctx, providerID)
	}
	if err != nil {
		s.observe(err)
		s.logg.Error(ctx, "order.finalize.failed", err)
		return nil, err
	}

	if result.AlreadyFinalized {
		s.incOrder("duplicate")
		s.logg.Info(s.logg.WithField(ctx, "order_number", result.OrderNumber), "order.finalize.replayed")
		return result, nil
	}
	s.incOrder("created")
	s.logg.Info(s.logg.WithField(ctx, "order_number", result.OrderNumber), "order.finalize.created")
	return result, nil
}

// releaseHolds drops the stock holds the session placed for its buyer.
func releaseHolds(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession) error {
	ids := make([]uuid.UUID, 0, len(session.Items))
	for _, item := range session.Items {
		ids = append(ids, item.VariantID)
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := reservations.NewRepository(tx).DeleteForOwner(ctx, reservations.OwnerForUser(session.UserID), ids...); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release stock holds")
	}
	return nil
}

func (s *service) existingResult(ctx context.Context, providerID string) (*FinalizeResult, error) {
	var result *FinalizeResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		session, err := checkout.NewRepository(tx).FindByProviderID(ctx, providerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout session")
		}
		existing, err := s.orders.WithTx(tx).FindByCheckoutSession(ctx, session.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing order")
		}
		result = &FinalizeResult{OrderID: existing.ID.String(), OrderNumber: existing.OrderNumber, AlreadyFinalized: true}
		return nil
	})
	return result, err
}

func (s *service) observe(err error) {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		s.incOrder("stock_conflict")
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.incOrder("unknown_session")
	default:
		s.incOrder("error")
	}
}

func (s *service) incOrder(outcome string) {
	if s.metrics != nil {
		s.metrics.IncOrder(outcome)
	}
}

// Expire moves an open session to expired and queues checkout.expired.
// It reports false when the session had already left the open state.
func (s *service) Expire(ctx context.Context, input ExpireInput) (bool, error) {
	source := input.Source
	if source == "" {
		source = ExpireSourceWebhook
	}
	expired := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := checkout.NewRepository(tx)
		session, err := findSession(ctx, sessions, input)
		if err != nil {
			return err
		}
		now := s.now()
		ok, err := sessions.MarkExpired(ctx, session.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire checkout session")
		}
		if !ok {
			return nil
		}
		if err := releaseHolds(ctx, tx, session); err != nil {
			return err
		}
		expired = true
		event := outbox.DomainEvent{
			EventType:     enums.EventCheckoutExpired,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   session.ID,
			Data: payloads.CheckoutExpiredEvent{
				CheckoutSessionID: session.ID,
				UserID:            session.UserID,
				ExpiredAt:         now,
				Source:            source,
			},
			OccurredAt: now,
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit checkout expired")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.logg.Info(s.logg.WithField(ctx, "source", source), "checkout.session.expired")
	}
	return expired, nil
}

func findSession(ctx context.Context, sessions *checkout.Repository, input ExpireInput) (*models.CheckoutSession, error) {
	var (
		session *models.CheckoutSession
		err     error
	)
	switch {
	case strings.TrimSpace(input.ProviderSessionID) != "":
		session, err = sessions.FindByProviderID(ctx, strings.TrimSpace(input.ProviderSessionID))
	case strings.TrimSpace(input.CheckoutID) != "":
		id, parseErr := uuid.Parse(strings.TrimSpace(input.CheckoutID))
		if parseErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid checkout id")
		}
		session, err = sessions.FindByID(ctx, id)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	return session, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	params = params.Normalize()
	rows, total, err := s.orders.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return &ListResult{Orders: out, Pagination: pagination.NewMeta(params, total)}, nil
}

func (s *service) GetForUser(ctx context.Context, userID uuid.UUID, orderNumber string) (*OrderDTO, error) {
	row, err := s.orders.FindByNumberForUser(ctx, userID, strings.TrimSpace(orderNumber))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	dto := fromModel(*row)
	return &dto, nil
}

func buildOrder(session *models.CheckoutSession, paymentRef string, now time.Time) *models.Order {
	order := &models.Order{
		ID:                uuid.New(),
		OrderNumber:       NewOrderNumber(now),
		UserID:            session.UserID,
		CheckoutSessionID: session.ID,
		Status:            enums.OrderStatusPaid,
		Email:             session.Email,
		SubtotalCents:     session.SubtotalCents,
		DiscountCents:     session.DiscountCents,
		ShippingCents:     session.ShippingCents,
		TotalCents:        session.TotalCents,
		Currency:          session.Currency,
		PromoCode:         session.PromoCode,
		ShippingMethod:    session.ShippingMethod,
		ShippingAddress:   session.ShippingAddress,
		PaymentReference:  paymentRef,
		Items:             make([]models.OrderItem, 0, len(session.Items)),
	}
	for _, item := range session.Items {
		order.Items = append(order.Items, models.OrderItem{
			VariantID:      item.VariantID,
			ProductName:    item.ProductName,
			VariantName:    item.VariantName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.UnitPriceCents * item.Quantity,
		})
	}
	return order
}

func orderPaidEvent(session *models.CheckoutSession, order *models.Order, now time.Time) outbox.DomainEvent {
	lines := make([]payloads.OrderPaidLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderPaidLine{
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: session.UserID, Source: "checkout"},
		Data: payloads.OrderPaidEvent{
			OrderID:           order.ID,
			OrderNumber:       order.OrderNumber,
			UserID:            order.UserID,
			CheckoutSessionID: session.ID,
			Email:             order.Email,
			TotalCents:        order.TotalCents,
			Currency:          order.Currency,
			PromoCode:         order.PromoCode,
			ShippingMethod:    order.ShippingMethod,
			Lines:             lines,
			PaidAt:            now,
		},
		OccurredAt: now,
	}
}

// NewOrderNumber formats PKC-YYYYMMDD-XXXXXXXX with a random suffix.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.UTC().Format("20060102"), suffix)
}
