package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/popfoundry/popserver/internal/api/handlers"
	"github.com/popfoundry/popserver/internal/api/middleware"
	"github.com/popfoundry/popserver/internal/config"
	"github.com/popfoundry/popserver/internal/ingest"
	"github.com/popfoundry/popserver/internal/metrics"
	"github.com/popfoundry/popserver/internal/storage/postgres"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter assembles the HTTP surface: the submission endpoint, the
// legacy /pop alias and /status probe, health endpoints, and Prometheus
// metrics, all wrapped in the correlation/tracing/metrics/logging chain.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (http.Handler, error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, err
	}

	service := ingest.NewService(repo, logger)
	popHandler := handlers.NewPopHandler(service, cfg.Environment)

	submit := middleware.RequestSize(cfg.Ingest.MaxBodyBytes)(http.HandlerFunc(popHandler.Submit))
	submitRoutes := methodMux(map[string]http.Handler{
		http.MethodPost: submit,
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/pop", submitRoutes)
	// Players in the field still post to the original path.
	mux.Handle("/pop", submitRoutes)
	mux.Handle("/status", handlers.Status())
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler, nil
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
