package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const envHeader = "X-Pokecard-Env"

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and fails with 503 on the first
// one that does not answer.
func HealthReady(env string, deps map[string]pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, env)
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}

// ReadinessDeps builds the dependency map for HealthReady.
func ReadinessDeps(db, cache pinger) map[string]pinger {
	return map[string]pinger{"database": db, "redis": cache}
}
