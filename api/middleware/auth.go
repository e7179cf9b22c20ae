package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	pkgAuth "github.com/angelmondragon/pokecard-storefront/pkg/auth"
	"github.com/angelmondragon/pokecard-storefront/pkg/auth/session"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	token := strings.TrimSpace(header)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// Auth validates the bearer access token and checks its session is still
// live, then stores the shopper identity on the request context.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := authenticate(r, cfg, verifier, logg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the shopper identity when a usable token is sent and
// lets anonymous or stale callers through unchanged.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if BearerToken(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r, cfg, verifier, logg)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) (context.Context, error) {
	ctx := r.Context()
	token := BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	if verifier != nil {
		live, err := verifier.HasSession(ctx, claims.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")
		}
	}

	ctx = WithUser(ctx, claims.UserID.String(), claims.Email)
	ctx = context.WithValue(ctx, ctxAccessID, claims.ID)
	if logg != nil {
		ctx = logg.WithUserID(ctx, claims.UserID.String())
	}
	return ctx, nil
}
