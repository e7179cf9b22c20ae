package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const maxRateLimitPeek = 1 << 14

// windowLimiter is satisfied by *pkg/redis.Client.
type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy throttles one auth surface per client IP and per email.
type AuthRateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

// LoginPolicy and RegisterPolicy read the configured limits.
func LoginPolicy(cfg config.AuthRateLimitConfig) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{Name: "login", Window: cfg.LoginWindow, IPLimit: cfg.LoginIPLimit, EmailLimit: cfg.LoginEmailLimit}
}

func RegisterPolicy(cfg config.AuthRateLimitConfig) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{Name: "register", Window: cfg.RegisterWindow, IPLimit: cfg.RegisterIPLimit, EmailLimit: cfg.RegisterEmailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.EmailLimit > 0)
}

func (p AuthRateLimitPolicy) scope(kind, value string) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "auth"
	}
	return "auth:" + name + ":" + kind + ":" + value
}

// AuthRateLimit rejects requests past either fixed-window counter with
// RATE_LIMIT_EXCEEDED.
func AuthRateLimit(policy AuthRateLimitPolicy, limiter windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.IPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					if !checkWindow(ctx, w, logg, limiter, policy, "ip", ip, policy.IPLimit) {
						return
					}
				}
			}

			if policy.EmailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitPeek))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if email := emailFromBody(body); email != "" {
					if !checkWindow(ctx, w, logg, limiter, policy, "email", hashValue(email), policy.EmailLimit) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func checkWindow(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, limiter windowLimiter, policy AuthRateLimitPolicy, kind, value string, limit int) bool {
	allowed, count, err := limiter.FixedWindowAllow(ctx, policy.scope(kind, value), int64(limit), policy.Window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if allowed {
		return true
	}
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":   policy.Name,
			"scope":    kind,
			"attempts": count,
			"limit":    limit,
		}), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", retryAfter(policy.Window))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
	return false
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
