package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/metrics"
)

// NewRouter mounts the API on a chi router with the standard middleware stack.
// apiKeys maps Bearer tokens to namespaces; empty enables local mode.
func NewRouter(s *Server, apiKeys map[string]string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(EscapedRoutePath)
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(logger))
	r.Use(NamespaceAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/usage", s.GetUsage)

	r.Route("/api/fundamental", func(r chi.Router) {
		r.Post("/upload", s.Upload)
		r.Get("/documents", s.ListDocuments)
		r.Delete("/document/{filename}", s.DeleteDocument)
		r.Post("/chat", s.Chat)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	return r
}
