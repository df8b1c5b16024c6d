package httpx

import (
	"log/slog"
	"net/http"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Registry *job.Registry // Required
	Watches  *service.WatchService
	Errors   *service.ErrorContext
	// Optional: outcome store; the outcomes route answers 503 without it.
	Outcomes core.OutcomeRepository
	// MaxSubscriptions caps subscriptions created over HTTP; zero means unlimited.
	MaxSubscriptions int
	Logger           *slog.Logger
}

// NewRouter creates the JSON API router. Subscriptions created over HTTP belong to a
// registry handle named "http" that lives as long as the registry.
func NewRouter(services RouterServices) http.Handler {
	if services.Registry == nil {
		panic("job registry is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validate := NewRequestValidator()

	health := &HealthHandlers{Registry: services.Registry, Watches: services.Watches}
	subs := NewSubscriptionHandlers(SubscriptionHandlersOptions{
		Registry:         services.Registry,
		Errors:           services.Errors,
		Validator:        validate,
		MaxSubscriptions: services.MaxSubscriptions,
	})
	specs := &SpecificationHandlers{Watches: services.Watches, Outcomes: services.Outcomes}
	errs := &ErrorHandlers{Errors: services.Errors}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.HandleFunc("GET /readyz", health.Ready)

	registerSubscriptionRoutes(mux, subs)
	registerSpecificationRoutes(mux, specs)
	registerErrorRoutes(mux, errs)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteAppError(w, r, notFound(r))
	})

	return Chain(mux, Recover(logger), Logging(logger))
}

func registerSubscriptionRoutes(mux *http.ServeMux, h *SubscriptionHandlers) {
	mux.HandleFunc("GET /api/subscriptions", h.List)
	mux.HandleFunc("POST /api/subscriptions", h.Create)
	mux.HandleFunc("GET /api/subscriptions/{id}", h.Get)
	mux.HandleFunc("PATCH /api/subscriptions/{id}", h.SetEnabled)
	mux.HandleFunc("DELETE /api/subscriptions/{id}", h.Delete)
}

func registerSpecificationRoutes(mux *http.ServeMux, h *SpecificationHandlers) {
	mux.HandleFunc("GET /api/watches", h.ListWatches)
	mux.HandleFunc("PUT /api/specifications/{id}/watch", h.Watch)
	mux.HandleFunc("DELETE /api/specifications/{id}/watch", h.Unwatch)
	mux.HandleFunc("GET /api/specifications/{id}/jobs", h.Jobs)
	mux.HandleFunc("GET /api/specifications/{id}/sql-export", h.SQLExport)
	mux.HandleFunc("GET /api/specifications/{id}/outcomes", h.ListOutcomes)
}

func registerErrorRoutes(mux *http.ServeMux, h *ErrorHandlers) {
	mux.HandleFunc("GET /api/errors", h.List)
	mux.HandleFunc("DELETE /api/errors", h.Clear)
}
