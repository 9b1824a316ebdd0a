package logging

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger stashes a request-scoped logger on the context so
// downstream handlers log with the request id attached.
func RequestLogger(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger
			if id := middleware.GetReqID(r.Context()); id != "" {
				reqLogger = logger.WithFields(map[string]any{"request_id": id})
			}

			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), reqLogger)))
		})
	}
}
