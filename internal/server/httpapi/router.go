// Package httpapi is the HTTP face of the sync server used by browser
// extensions: API-key authenticated sync, export and health probes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/marksync/internal/logging"
)

// NewRouter mounts every route on a chi router.
func NewRouter(h *Handler, auth Authenticator, logger logging.Logger) chi.Router {
	logger = logger.With("module", "httpapi")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Log(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyMiddleware(auth, logger))

		r.Post("/api/sync/check-api-key", h.CheckAPIKey)
		r.Post("/api/sync", h.Sync)
		// Deprecated path kept for old extension builds.
		r.Post("/sync", h.Sync)
		r.Post("/api/export", h.Export)
	})

	return r
}

// NewServer wraps the router in an http.Server bound to addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
