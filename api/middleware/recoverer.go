package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/pokecard-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

// Recoverer turns handler panics into an INTERNAL_ERROR envelope.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil || rec == http.ErrAbortHandler {
					if rec != nil {
						panic(rec)
					}
					return
				}
				err := fmt.Errorf("panic: %v", rec)
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic recovered"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
