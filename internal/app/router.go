package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/br7tech/billdesk/internal/auth"
	"github.com/br7tech/billdesk/internal/billing"
	"github.com/br7tech/billdesk/internal/catalog"
	"github.com/br7tech/billdesk/internal/clients"
	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/invoice"
	"github.com/br7tech/billdesk/internal/observability"
	"github.com/br7tech/billdesk/internal/payments"
	"github.com/br7tech/billdesk/internal/platform/httpx"
	"github.com/br7tech/billdesk/internal/shared"
	"github.com/br7tech/billdesk/jobs"
	"github.com/br7tech/billdesk/web"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthService      *auth.Service
	AuthHandler      *auth.Handler
	CatalogHandler   *catalog.Handler
	ClientsHandler   *clients.Handler
	InventoryHandler *inventory.Handler
	BillingHandler   *billing.Handler
	InvoiceHandler   *invoice.Handler
	PaymentsHandler  *payments.Handler
	JobHandler       *jobs.Handler
	PDF              Pinger
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with billdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config != nil && !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.PDF != nil {
		r.Get("/healthz/pdf", func(w http.ResponseWriter, r *http.Request) {
			if err := params.PDF.Ping(r.Context()); err != nil {
				params.Logger.Warn("gotenberg ping failed", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "")
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(params.Logger, params.AuthService, params.SessionManager))

		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.ClientsHandler != nil {
			r.Route("/clients", params.ClientsHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		r.Route("/bills", func(r chi.Router) {
			if params.BillingHandler != nil {
				params.BillingHandler.MountBillRoutes(r)
			}
			if params.InvoiceHandler != nil {
				params.InvoiceHandler.MountBillRoutes(r)
			}
		})
		r.Route("/service-bills", func(r chi.Router) {
			if params.BillingHandler != nil {
				params.BillingHandler.MountServiceBillRoutes(r)
			}
			if params.InvoiceHandler != nil {
				params.InvoiceHandler.MountServiceBillRoutes(r)
			}
		})
		if params.PaymentsHandler != nil {
			r.Route("/payments", params.PaymentsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers keep static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
