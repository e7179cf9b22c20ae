package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

const (
	// IdempotencyHeader carries the client-generated key.
	IdempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"

	checkoutReplayTTL = 24 * time.Hour
	maxIdempotentBody = 1 << 20
)

type idempotencyRule struct {
	method   string
	pattern  string
	ttl      time.Duration
	required bool
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, pattern: "/api/v1/checkout/sessions", ttl: checkoutReplayTTL, required: true},
	{method: http.MethodPost, pattern: "/api/v1/auth/register", ttl: time.Hour},
}

type idempotencyRecord struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response for a repeated key on the routes
// listed above. A key reused with a different body is rejected with
// IDEMPOTENCY_KEY_REUSED. Only 2xx responses are stored so failed attempts
// can be retried with the same key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" {
				if rule.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			storeKey := store.IdempotencyKey(replayScope(r, rule), key)

			stored, err := store.Get(ctx, storeKey)
			if err != nil && !errors.Is(err, pkgredis.Nil) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if stored != "" {
				var record idempotencyRecord
				if err := json.Unmarshal([]byte(stored), &record); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if record.RequestHash != hash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
					return
				}
				replay(w, record)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.status
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status >= 300 {
				return
			}
			record := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				ContentType: capture.Header().Get("Content-Type"),
				RequestHash: hash,
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logError(ctx, logg, "idempotency.record.marshal_failed", err)
				return
			}
			if _, err := store.SetNX(ctx, storeKey, string(payload), rule.ttl); err != nil {
				logError(ctx, logg, "idempotency.record.persist_failed", err)
			}
		})
	}
}

func replayScope(r *http.Request, rule idempotencyRule) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), rule.method, rule.pattern}, "|")
}

func replay(w http.ResponseWriter, record idempotencyRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func matchRule(method, pattern string) (idempotencyRule, bool) {
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.pattern == pattern {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil && err != nil {
		logg.Error(ctx, msg, err)
	}
}
