package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
)

// Kind is the closed set of checkout failure classes.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindStaleness    Kind = "staleness"
	KindConflict     Kind = "conflict"
	KindAuthRequired Kind = "auth_required"
	KindTransport    Kind = "transport"
)

const (
	msgTransport    = "We could not reach the store. Check your connection and try again."
	msgGeneric      = "Checkout could not be started. Please try again."
	msgInsufficient = "Some items no longer have enough stock. Your cart has been refreshed."
	msgAuthRequired = "Please sign in to complete your order."
	msgKeyReused    = "Your previous checkout already finished. Please try again."
)

const codeKeyReused = "IDEMPOTENCY_KEY_REUSED"

// Error is a user-facing checkout failure.
type Error struct {
	Kind      Kind
	Message   string
	Fields    []string
	Conflicts []apiclient.StockConflict
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsError unwraps a checkout *Error.
func AsError(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// classify folds a session-creation failure into a Kind, reading the
// status code and error code rather than trusting any particular shape.
func classify(err error) *Error {
	if errors.Is(err, apiclient.ErrTransport) {
		return &Error{Kind: KindTransport, Message: msgTransport, Err: err}
	}
	apiErr, ok := apiclient.AsError(err)
	if !ok {
		return &Error{Kind: KindTransport, Message: msgTransport, Err: err}
	}

	switch {
	case apiErr.Status == http.StatusUnauthorized:
		return &Error{Kind: KindAuthRequired, Message: msgAuthRequired, Err: err}
	case apiErr.Code == codeKeyReused:
		// the key belongs to a finished session; the stored record is stale
		return &Error{Kind: KindStaleness, Message: msgKeyReused, Err: err}
	case isStockConflict(apiErr):
		return &Error{Kind: KindConflict, Message: msgInsufficient, Conflicts: apiErr.StockConflicts(), Err: err}
	case apiErr.Status == http.StatusConflict:
		return &Error{Kind: KindConflict, Message: messageOr(apiErr.Message, msgGeneric), Err: err}
	case apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity:
		return &Error{Kind: KindValidation, Message: messageOr(apiErr.Message, msgGeneric), Err: err}
	case apiErr.Status >= http.StatusInternalServerError:
		return &Error{Kind: KindTransport, Message: messageOr(apiErr.Message, msgGeneric), Err: err}
	}
	return &Error{Kind: KindValidation, Message: messageOr(apiErr.Message, msgGeneric), Err: err}
}

func isKeyReused(err error) bool {
	apiErr, ok := apiclient.AsError(err)
	return ok && apiErr.Code == codeKeyReused
}

func isStockConflict(apiErr *apiclient.Error) bool {
	if apiErr.Code == "INSUFFICIENT_STOCK" {
		return true
	}
	return apiErr.Status == http.StatusConflict && strings.Contains(strings.ToLower(apiErr.Message), "stock")
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
