package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return body.Error
}

func TestWriteSuccessAndCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"hello": "world"})
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	var body types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}

	created := httptest.NewRecorder()
	WriteCreated(created, map[string]string{"sessionId": "cs_1"})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", created.Code)
	}
}

func TestWriteErrorStockConflictKeepsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	details := []types.StockConflict{{VariantID: "v1", Reason: types.StockReasonOutOfStock, Available: 0}}
	err := pkgerrors.New(pkgerrors.CodeStock, "some items are no longer available").WithDetails(details)
	WriteError(context.Background(), logger.Nop(), rec, err)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	apiErr := decodeError(t, rec)
	if apiErr.Code != string(pkgerrors.CodeStock) || apiErr.Message != "some items are no longer available" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if apiErr.Details == nil {
		t.Fatal("expected stock details to be returned")
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, errors.New("pq: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	apiErr := decodeError(t, rec)
	if apiErr.Code != string(pkgerrors.CodeInternal) || apiErr.Message != "internal server error" {
		t.Fatalf("internal error leaked: %+v", apiErr)
	}
}

func TestWriteErrorUsesOwnMessageForValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeValidation, "promo code is no longer valid"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Message != "promo code is no longer valid" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}
