package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"

	"github.com/openfoodnetwork/ofn-backend/pkg/config"
)

var (
	corsMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	corsRequestHeaders = []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader}
	corsExposedHeaders = []string{requestIDHeader, "Retry-After"}
)

// CORS applies the configured origin policy. A wildcard origin never carries
// credentials, whatever OFN_CORS_ALLOW_CREDENTIALS says.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	credentials := cfg.AllowCredentials && !slices.Contains(cfg.AllowedOrigins, "*")
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   corsMethods,
		AllowedHeaders:   corsRequestHeaders,
		ExposedHeaders:   corsExposedHeaders,
		AllowCredentials: credentials,
		MaxAge:           int(cfg.MaxAge.Seconds()),
	}).Handler
}
