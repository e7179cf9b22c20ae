// Package apiclient talks to the storefront API on behalf of the shopper.
// Wire types are shared with the server packages so both sides agree.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/pokecard-storefront/internal/auth"
	"github.com/angelmondragon/pokecard-storefront/internal/catalog"
	"github.com/angelmondragon/pokecard-storefront/internal/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/orders"
	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	"github.com/angelmondragon/pokecard-storefront/internal/shipping"
	"github.com/angelmondragon/pokecard-storefront/internal/users"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

type (
	Product         = catalog.ProductDTO
	ProductList     = catalog.ListResult
	Stock           = catalog.StockDTO
	PromoResult     = promo.Result
	ShippingMethod  = shipping.Method
	CheckoutRequest = checkout.CreateSessionRequest
	CheckoutItem    = checkout.ItemRequest
	ShippingInfo    = checkout.ShippingRequest
	CheckoutSession = checkout.SessionResult
	CheckoutStatus  = checkout.SessionStatusDTO
	LoginRequest    = auth.LoginRequest
	RegisterRequest = auth.RegisterRequest
	Tokens          = auth.TokenResponse
	User            = users.UserDTO
	Order           = orders.OrderDTO
	OrderList       = orders.ListResult
	StockConflict   = types.StockConflict
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 64 << 10
)

// ErrTransport marks failures where no API answer was received.
var ErrTransport = errors.New("apiclient: transport failure")

// Error is a decoded API error envelope.
type Error struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// StockConflicts decodes the details of an INSUFFICIENT_STOCK error.
func (e *Error) StockConflicts() []StockConflict {
	if e == nil || len(e.Details) == 0 {
		return nil
	}
	var out []StockConflict
	if err := json.Unmarshal(e.Details, &out); err != nil {
		return nil
	}
	return out
}

// AsError unwraps an *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// TokenSource supplies the bearer token for authenticated calls. An empty
// token sends the request anonymously.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Tokens     TokenSource
	Logger     *logger.Logger
}

// Client is a typed client for /api/v1.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
	logg   *logger.Logger
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", raw)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Client{base: base, http: httpClient, tokens: opts.Tokens, logg: logg}, nil
}

// SetTokenSource swaps the token source, e.g. once the shopper signs in.
func (c *Client) SetTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

type ProductQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
}

func (c *Client) ListProducts(ctx context.Context, q ProductQuery) (*ProductList, error) {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Category != "" {
		values.Set("category", q.Category)
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	var out ProductList
	if err := c.do(ctx, http.MethodGet, "/api/v1/products", values, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Product(ctx context.Context, slug string) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodGet, "/api/v1/products/"+url.PathEscape(slug), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VariantsStock fetches stock and price for every id in one request.
func (c *Client) VariantsStock(ctx context.Context, variantIDs []string) (map[string]Stock, error) {
	body := map[string][]string{"variantIds": variantIDs}
	var out struct {
		Stocks map[string]Stock `json:"stocks"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/products/variants/stock", nil, nil, body, &out); err != nil {
		return nil, err
	}
	if out.Stocks == nil {
		out.Stocks = map[string]Stock{}
	}
	return out.Stocks, nil
}

func (c *Client) ValidatePromo(ctx context.Context, code string, subtotalCents int) (*PromoResult, error) {
	body := map[string]any{"code": code, "subtotalCents": subtotalCents}
	var out PromoResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/promo/validate", nil, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ShippingMethods(ctx context.Context) ([]ShippingMethod, error) {
	var out struct {
		Methods []ShippingMethod `json:"methods"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/shipping-methods", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Methods, nil
}

// CreateCheckoutSession submits req under idempotencyKey.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest, idempotencyKey string) (*CheckoutSession, error) {
	headers := http.Header{}
	headers.Set(idempotencyHeader, idempotencyKey)
	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/api/v1/checkout/sessions", nil, headers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckoutSessionStatus(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	var out CheckoutStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", nil, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	body := auth.RefreshRequest{RefreshToken: refreshToken}
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", nil, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, nil, nil)
}

// Verify returns the shopper behind the current token.
func (c *Client) Verify(ctx context.Context) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/verify", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) Orders(ctx context.Context, page, limit int) (*OrderList, error) {
	values := url.Values{}
	if page > 0 {
		values.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out OrderList
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders", values, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Order(ctx context.Context, orderNumber string) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(orderNumber), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers http.Header, body, dest any) error {
	target := *c.base
	target.Path = c.base.Path + path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.tokens != nil {
		if token := c.tokens.AccessToken(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"method": method, "path": path, "error": err.Error()}), "api.transport.failed")
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", ErrTransport, method, path, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", ErrTransport, method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &Error{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}
