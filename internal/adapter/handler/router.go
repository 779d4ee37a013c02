package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// RouteRegistrar adds a feature's routes under /api/v1.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter builds the REST surface of a service. Everything under /api/v1
// requires the gateway secret; /health does not.
func NewRouter(service, gatewaySecret string, logger *zap.Logger, features ...RouteRegistrar) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.StripSlashes)
	router.Use(RequestLogger(logger))

	router.Get("/health", HealthCheck)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(GatewayAuth(gatewaySecret, logger))
		for _, f := range features {
			f.RegisterRoutes(r)
		}
	})

	return otelhttp.NewHandler(router, service)
}
