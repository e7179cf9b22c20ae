package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Logging emits request.start and request.complete with status and latency.
// Server errors are logged at warn level.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			logg.Debug(ctx, "request.start")

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			done := logg.WithFields(ctx, map[string]any{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if rec.status >= http.StatusInternalServerError {
				logg.Warn(done, "request.complete")
				return
			}
			logg.Info(done, "request.complete")
		})
	}
}
