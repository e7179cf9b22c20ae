package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	"github.com/angelmondragon/pokecard-storefront/internal/shipping"
	pkgcheckout "github.com/angelmondragon/pokecard-storefront/pkg/checkout"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/metrics"
	pkgstripe "github.com/angelmondragon/pokecard-storefront/pkg/stripe"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

const maxIdempotencyKeyLength = 255

// checkoutIDSpace derives stable row ids from (user, idempotency key).
var checkoutIDSpace = uuid.MustParse("6f1c3a52-8d0e-4b7a-9c1e-5a4f2b9d7e10")

// Provider creates hosted payment pages. *pkg/stripe.Client satisfies it.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutRequest) (*pkgstripe.CheckoutResult, error)
}

type variantLoader interface {
	FindVariants(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error)
}

// holdKeeper is the slice of the reservations service checkout uses.
type holdKeeper interface {
	HeldByOthers(ctx context.Context, variantIDs []uuid.UUID, owner string) (map[uuid.UUID]int, error)
	HoldItems(ctx context.Context, owner string, quantities map[uuid.UUID]int, expiresAt time.Time) error
}

type promoValidator interface {
	Validate(ctx context.Context, code string, subtotalCents int) (promo.Result, error)
}

type sessionStore interface {
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByUserKey(ctx context.Context, userID uuid.UUID, key string) (*models.CheckoutSession, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	FindByProviderID(ctx context.Context, providerID string) (*models.CheckoutSession, error)
	OrderNumberFor(ctx context.Context, sessionID uuid.UUID) (string, error)
}

// Service creates and reports on payment checkout sessions.
type Service interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*SessionResult, error)
	GetSession(ctx context.Context, userID uuid.UUID, id string) (*SessionStatusDTO, error)
}

// ServiceParams bundles the checkout dependencies.
type ServiceParams struct {
	Sessions sessionStore
	Variants variantLoader
	Holds    holdKeeper
	Promos   promoValidator
	Provider Provider
	Config   config.CheckoutConfig
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
}

type service struct {
	sessions sessionStore
	variants variantLoader
	holds    holdKeeper
	promos   promoValidator
	provider Provider
	cfg      config.CheckoutConfig
	limits   pkgcheckout.Limits
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout session store required")
	}
	if params.Variants == nil {
		return nil, fmt.Errorf("variant loader required")
	}
	if params.Promos == nil {
		return nil, fmt.Errorf("promo validator required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Config.SessionTTL <= 0 {
		return nil, fmt.Errorf("checkout session ttl must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		sessions: params.Sessions,
		variants: params.Variants,
		holds:    params.Holds,
		promos:   params.Promos,
		provider: params.Provider,
		cfg:      params.Config,
		limits:   pkgcheckout.LimitsFromConfig(params.Config),
		metrics:  params.Metrics,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// plan is a validated request with server-side prices applied.
type plan struct {
	items          []models.CheckoutItem
	address        types.ShippingAddress
	email          string
	method         shipping.Method
	promoCode      *string
	subtotalCents  int
	discountCents  int
	successURL     string
	cancelURL      string
	idempotencyKey string
}

func (p plan) totalCents() int {
	afterDiscount := p.subtotalCents - p.discountCents
	if afterDiscount < 0 {
		afterDiscount = 0
	}
	return afterDiscount + p.method.PriceCents
}

func (s *service) CreateSession(ctx context.Context, input CreateSessionInput) (*SessionResult, error) {
	started := time.Now()
	result, err := s.createSession(ctx, input)
	s.metrics.ObserveSession(outcomeFor(result, err), time.Since(started))
	return result, err
}

func outcomeFor(result *SessionResult, err error) string {
	switch {
	case err == nil && result.Replayed:
		return metrics.OutcomeReplayed
	case err == nil:
		return metrics.OutcomeCreated
	case pkgerrors.IsCode(err, pkgerrors.CodeStock):
		return metrics.OutcomeStockConflict
	case pkgerrors.IsCode(err, pkgerrors.CodeDependency):
		return metrics.OutcomeProviderError
	default:
		return metrics.OutcomeInvalid
	}
}

func (s *service) createSession(ctx context.Context, input CreateSessionInput) (*SessionResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required")
	}
	if len(key) > maxIdempotencyKeyLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long")
	}

	lines, err := parseLines(input.Request.Items)
	if err != nil {
		return nil, err
	}
	if err := pkgcheckout.ValidateLines(lines, s.limits); err != nil {
		return nil, err
	}

	p, err := s.preparePlan(input, key)
	if err != nil {
		return nil, err
	}

	flightKey := input.UserID.String() + ":" + key
	value, err, shared := s.group.Do(flightKey, func() (any, error) {
		return s.openSession(ctx, input.UserID, lines, p)
	})
	if err != nil {
		return nil, err
	}
	result := *value.(*SessionResult)
	if shared {
		result.Replayed = true
	}
	return &result, nil
}

func parseLines(items []ItemRequest) ([]pkgcheckout.LineInput, error) {
	lines := make([]pkgcheckout.LineInput, 0, len(items))
	for i, item := range items {
		id, err := uuid.Parse(strings.TrimSpace(item.VariantID))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid variantId").
				WithDetails(map[string]any{"index": i, "variantId": item.VariantID})
		}
		lines = append(lines, pkgcheckout.LineInput{VariantID: id, Quantity: item.Quantity})
	}
	return lines, nil
}

// preparePlan covers every check that needs no database access.
func (s *service) preparePlan(input CreateSessionInput, key string) (plan, error) {
	req := input.Request
	address := req.Shipping.Address().Normalized()
	if missing := address.Missing(); len(missing) > 0 {
		details := make(map[string]string, len(missing))
		for _, field := range missing {
			details["shipping."+field] = "is required"
		}
		return plan{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete").WithDetails(details)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(input.UserEmail))
	}
	if !strings.Contains(email, "@") {
		return plan{}, pkgerrors.New(pkgerrors.CodeValidation, "a contact email is required").
			WithDetails(map[string]string{"email": "must be a valid email"})
	}

	method := shipping.Default()
	if code := strings.TrimSpace(req.ShippingMethodCode); code != "" {
		found, ok := shipping.Lookup(code)
		if !ok {
			return plan{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping method").
				WithDetails(map[string]string{"shippingMethodCode": "is not an enabled method"})
		}
		method = found
	}

	successURL, err := pkgcheckout.ResolveRedirect("successUrl", req.SuccessURL, s.cfg.SuccessURL, s.cfg.AllowedOrigins)
	if err != nil {
		return plan{}, err
	}
	cancelURL, err := pkgcheckout.ResolveRedirect("cancelUrl", req.CancelURL, s.cfg.CancelURL, s.cfg.AllowedOrigins)
	if err != nil {
		return plan{}, err
	}

	p := plan{
		address:        address,
		email:          email,
		method:         method,
		successURL:     successURL,
		cancelURL:      cancelURL,
		idempotencyKey: key,
	}
	if code := promo.NormalizeCode(req.PromoCode); code != "" {
		p.promoCode = &code
	}
	return p, nil
}

func (s *service) openSession(ctx context.Context, userID uuid.UUID, lines []pkgcheckout.LineInput, p plan) (*SessionResult, error) {
	if existing, err := s.replay(ctx, userID, p.idempotencyKey); existing != nil || err != nil {
		return existing, err
	}

	items, subtotal, err := s.priceLines(ctx, userID, lines)
	if err != nil {
		return nil, err
	}
	p.items = items
	p.subtotalCents = subtotal

	if p.promoCode != nil {
		applied, err := s.promos.Validate(ctx, *p.promoCode, subtotal)
		if err != nil {
			return nil, err
		}
		if !applied.Valid {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo code is no longer valid").
				WithDetails(map[string]string{"promoCode": "is no longer valid"})
		}
		p.discountCents = applied.DiscountCents
	}

	now := s.now()
	row := &models.CheckoutSession{
		ID:              uuid.NewSHA1(checkoutIDSpace, []byte(userID.String()+":"+p.idempotencyKey)),
		UserID:          userID,
		IdempotencyKey:  p.idempotencyKey,
		Status:          enums.CheckoutSessionOpen,
		Email:           p.email,
		Items:           p.items,
		SubtotalCents:   p.subtotalCents,
		DiscountCents:   p.discountCents,
		ShippingCents:   p.method.PriceCents,
		TotalCents:      p.totalCents(),
		Currency:        strings.ToLower(s.cfg.Currency),
		PromoCode:       p.promoCode,
		ShippingMethod:  p.method.Code,
		ShippingAddress: p.address,
		ExpiresAt:       now.Add(s.cfg.SessionTTL),
	}

	created, err := s.provider.CreateCheckoutSession(ctx, buildProviderRequest(row, p))
	if err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{"checkout_session_id": row.ID.String(), "idempotency_key": p.idempotencyKey}), "checkout.provider.failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable")
	}
	if created == nil || strings.TrimSpace(created.URL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider returned no redirect url")
	}
	row.ProviderSessionID = &created.ID
	row.ProviderURL = created.URL

	if err := s.sessions.Create(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "ux_checkout_sessions_user_key") {
			if existing, replayErr := s.replay(ctx, userID, p.idempotencyKey); existing != nil || replayErr != nil {
				return existing, replayErr
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist checkout session")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": row.ID.String(),
		"provider_session_id": created.ID,
		"total_cents":         row.TotalCents,
		"items":               len(row.Items),
	})
	s.logg.Info(logCtx, "checkout.session.created")
	s.holdItems(logCtx, userID, row)
	return resultFromModel(row, false), nil
}

// replay returns the session already opened under key, if it is still open.
func (s *service) replay(ctx context.Context, userID uuid.UUID, key string) (*SessionResult, error) {
	existing, err := s.sessions.FindByUserKey(ctx, userID, key)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup checkout session")
	}
	if existing.Status != enums.CheckoutSessionOpen {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used by a finished checkout").
			WithDetails(map[string]string{"status": existing.Status.String()})
	}
	s.logg.Info(s.logg.WithCheckoutSessionID(ctx, existing.ID.String()), "checkout.session.replayed")
	return resultFromModel(existing, true), nil
}

// holdItems keeps the session's units out of other shoppers' reach until
// the session expires. A failed hold does not fail the checkout.
func (s *service) holdItems(ctx context.Context, userID uuid.UUID, row *models.CheckoutSession) {
	if s.holds == nil {
		return
	}
	quantities := make(map[uuid.UUID]int, len(row.Items))
	for _, item := range row.Items {
		quantities[item.VariantID] += item.Quantity
	}
	if err := s.holds.HoldItems(ctx, reservations.OwnerForUser(userID), quantities, row.ExpiresAt); err != nil {
		s.logg.Error(ctx, "checkout.hold.failed", err)
	}
}

// priceLines loads the variants in one query and applies server prices.
// Stock held by other shoppers is not available. Any line that cannot be
// honoured is reported in the conflict details.
func (s *service) priceLines(ctx context.Context, userID uuid.UUID, lines []pkgcheckout.LineInput) ([]models.CheckoutItem, int, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariantID)
	}
	variants, err := s.variants.FindVariants(ctx, ids)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variants")
	}
	byID := make(map[uuid.UUID]models.ProductVariant, len(variants))
	for _, variant := range variants {
		byID[variant.ID] = variant
	}
	held := map[uuid.UUID]int{}
	if s.holds != nil {
		held, err = s.holds.HeldByOthers(ctx, ids, reservations.OwnerForUser(userID))
		if err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock holds")
		}
	}

	var conflicts []types.StockConflict
	items := make([]models.CheckoutItem, 0, len(lines))
	subtotal := 0
	for _, line := range lines {
		variant, ok := byID[line.VariantID]
		available := variant.Stock - held[line.VariantID]
		switch {
		case !ok || !variant.IsActive || variant.Product == nil || !variant.Product.IsActive:
			conflicts = append(conflicts, types.StockConflict{VariantID: line.VariantID.String(), Reason: types.StockReasonNotAvailable})
			continue
		case available <= 0:
			conflicts = append(conflicts, types.StockConflict{VariantID: line.VariantID.String(), Reason: types.StockReasonOutOfStock})
			continue
		case available < line.Quantity:
			conflicts = append(conflicts, types.StockConflict{VariantID: line.VariantID.String(), Reason: types.StockReasonInsufficientStock, Available: available})
			continue
		}
		items = append(items, models.CheckoutItem{
			VariantID:      variant.ID,
			ProductName:    variant.Product.Name,
			VariantName:    variant.Name,
			ImageURL:       variant.Product.ImageURL,
			UnitPriceCents: variant.PriceCents,
			Quantity:       line.Quantity,
		})
		subtotal += variant.PriceCents * line.Quantity
	}
	if len(conflicts) > 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeStock, "insufficient stock").WithDetails(conflicts)
	}
	return items, subtotal, nil
}

func buildProviderRequest(row *models.CheckoutSession, p plan) pkgstripe.CheckoutRequest {
	lines := make([]pkgstripe.CheckoutLine, 0, len(row.Items)+1)
	for _, item := range row.Items {
		lines = append(lines, pkgstripe.CheckoutLine{
			Name:            fmt.Sprintf("%s (%s)", item.ProductName, item.VariantName),
			ImageURL:        item.ImageURL,
			UnitAmountCents: int64(item.UnitPriceCents),
			Quantity:        int64(item.Quantity),
		})
	}
	if p.method.PriceCents > 0 {
		lines = append(lines, pkgstripe.CheckoutLine{
			Name:            p.method.Label,
			Description:     p.method.Description,
			UnitAmountCents: int64(p.method.PriceCents),
			Quantity:        1,
		})
	}

	promoCode := ""
	if p.promoCode != nil {
		promoCode = *p.promoCode
	}
	return pkgstripe.CheckoutRequest{
		IdempotencyKey:    row.UserID.String() + ":" + p.idempotencyKey,
		Currency:          row.Currency,
		CustomerEmail:     row.Email,
		ClientReferenceID: row.ID.String(),
		Lines:             lines,
		DiscountCents:     int64(row.DiscountCents),
		DiscountLabel:     promoCode,
		SuccessURL:        p.successURL,
		CancelURL:         p.cancelURL,
		ExpiresAt:         row.ExpiresAt,
		Metadata: map[string]string{
			"userId":            row.UserID.String(),
			"shippingMethod":    row.ShippingMethod,
			"promoCode":         promoCode,
			"checkoutSessionId": row.ID.String(),
		},
	}
}

// GetSession accepts either the checkout id or the provider session id.
func (s *service) GetSession(ctx context.Context, userID uuid.UUID, id string) (*SessionStatusDTO, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	var (
		session *models.CheckoutSession
		err     error
	)
	if parsed, parseErr := uuid.Parse(id); parseErr == nil {
		session, err = s.sessions.FindByID(ctx, parsed)
	} else {
		session, err = s.sessions.FindByProviderID(ctx, id)
	}
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if session.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}

	orderNumber, err := s.sessions.OrderNumberFor(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order number")
	}
	return statusFromModel(session, orderNumber), nil
}
