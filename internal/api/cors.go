package api

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS returns middleware that admits browser requests from origins. An empty
// list leaves responses without CORS headers, which keeps the API same-origin
// only.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", UserHeader, "Traceparent"},
		ExposedHeaders: []string{"X-Correlation-ID"},
	})
	return c.Handler
}
