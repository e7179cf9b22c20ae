package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

// codes whose own message is safe to show the shopper.
var publicMessageCodes = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeUnauthorized:  true,
	pkgerrors.CodeForbidden:     true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeConflict:      true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeIdempotency:   true,
	pkgerrors.CodeStock:         true,
	pkgerrors.CodeRateLimit:     true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteCreated(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusCreated, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err as the error envelope. Untyped errors become
// INTERNAL_ERROR and never leak their message.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if publicMessageCodes[typed.Code()] && typed.Message() != "" {
		msg = typed.Message()
	}
	payload := types.ErrorEnvelope{Error: types.APIError{Code: string(typed.Code()), Message: msg}}
	if meta.DetailsAllowed && typed.Details() != nil {
		payload.Error.Details = typed.Details()
	}

	if logg != nil {
		dump := pkgerrors.Dump(err)
		fields := map[string]any{
			"error_code":  dump.Code,
			"error_chain": dump.Chain,
			"http_status": meta.HTTPStatus,
		}
		if dump.PGCode != "" {
			fields["pg_code"] = dump.PGCode
			fields["pg_constraint"] = dump.PGConstraint
			fields["pg_detail"] = dump.PGDetail
		}
		logCtx := logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Warn(logCtx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"response.encode_failed","err":"%v"}`, err)
	}
}
