package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookline-hq/bookline/internal/authz"
	"github.com/bookline-hq/bookline/internal/identity"
	"github.com/bookline-hq/bookline/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthzHandler *authz.Handler
	Identity     *identity.Service
	Metrics      *observability.Metrics
}

// NewRouter assembles the service router.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  p.Logger,
		Config:  p.Config,
		Metrics: p.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(identity.APIKeyAuth(p.Identity, p.Logger))
		p.AuthzHandler.MountRoutes(r)
	})

	return r
}
