/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     slog request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Request durations by route pattern (when enabled)
  5. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /health                Liveness plus database ping
  /metrics               Prometheus scrape endpoint (when enabled)
  /api/warehouse/*       Catalog, documents, ledger entries, stock reports
  /api/scenarios/*       Demo scenarios (dev only)

AUTHENTICATION:
  Every /api/warehouse route requires a bearer JWT (see auth.go). Trailing
  slashes are optional.

SEE ALSO:
  - handlers.go: Catalog handlers
  - documents.go: Entrance, turnover and order handlers
  - stock.go: Remains, availability and history handlers
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/stock-ledger/metrics"
)

// Options configures NewRouter.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	// Metrics enables /metrics and request instrumentation when non-nil.
	Metrics *metrics.Metrics
	// Scenarios mounts the demo scenario routes.
	Scenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api/warehouse", func(r chi.Router) {
		r.Use(Authenticate(opts.JWTSecret))
		r.Use(middleware.StripSlashes)

		r.Route("/warehouse", func(r chi.Router) {
			r.Get("/", h.ListWarehouses)
			r.Post("/", h.CreateWarehouse)
			r.Get("/{id}", h.GetWarehouse)
			r.Put("/{id}", h.UpdateWarehouse)
			r.Delete("/{id}", h.DeleteWarehouse)
		})

		r.Route("/unit", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Post("/", h.CreateUnit)
			r.Get("/{id}", h.GetUnit)
			r.Put("/{id}", h.UpdateUnit)
			r.Delete("/{id}", h.DeleteUnit)
		})

		r.Route("/material_category", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Get("/{id}", h.GetCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/material", func(r chi.Router) {
			r.Get("/", h.ListMaterials)
			r.Post("/", h.CreateMaterial)
			r.Post("/rename_tag", h.RenameTag)
			r.Get("/remains", h.Remains)
			r.Get("/remains/export", h.ExportRemains)
			r.Get("/remains_category", h.RemainsByCategory)
			r.Get("/{id}", h.GetMaterial)
			r.Put("/{id}", h.UpdateMaterial)
			r.Delete("/{id}", h.DeleteMaterial)
		})

		r.Route("/entrance", func(r chi.Router) {
			r.Get("/", h.ListEntrances)
			r.Post("/", h.CreateEntrance)
			r.Get("/providers", h.ListProviders)
			r.Get("/{id}", h.GetEntrance)
			r.Put("/{id}", h.UpdateEntrance)
			r.Delete("/{id}", h.DeleteEntrance)
		})

		r.Route("/turnover", func(r chi.Router) {
			r.Get("/", h.ListTurnovers)
			r.Post("/", h.CreateTurnover)
			r.Get("/material", h.MaterialHistory)
			r.Post("/moving_material", h.MoveMaterial)
			r.Get("/{id}", h.GetTurnover)
			r.Delete("/{id}", h.DeleteTurnover)
		})

		r.Route("/order", func(r chi.Router) {
			r.Get("/{id}/turnovers", h.ListOrderTurnovers)
			r.Post("/{id}/turnovers", h.ConsumeForOrder)
		})

		// External systems push their current state here.
		r.Route("/directory", func(r chi.Router) {
			r.Put("/orders/{id}", h.PutOrder)
			r.Put("/employees/{id}", h.PutEmployee)
		})
	})

	if opts.Scenarios {
		r.Route("/api/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	}

	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
