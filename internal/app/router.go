package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/probookkeeper/probookkeeper/internal/bills"
	"github.com/probookkeeper/probookkeeper/internal/invoicing"
	"github.com/probookkeeper/probookkeeper/internal/ledger/accounts"
	"github.com/probookkeeper/probookkeeper/internal/ledger/journals"
	"github.com/probookkeeper/probookkeeper/internal/observability"
	"github.com/probookkeeper/probookkeeper/internal/quotes"
	"github.com/probookkeeper/probookkeeper/internal/reports/aging"
	"github.com/probookkeeper/probookkeeper/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	InvoiceHandler *invoicing.Handler
	BillHandler    *bills.Handler
	QuoteHandler   *quotes.Handler
	JournalHandler *journals.Handler
	AccountHandler *accounts.Handler
	ReportHandler  *aging.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.InvoiceHandler != nil {
			r.Route("/invoices", params.InvoiceHandler.MountRoutes)
		}
		if params.BillHandler != nil {
			r.Route("/bills", params.BillHandler.MountRoutes)
		}
		if params.QuoteHandler != nil {
			r.Route("/quotes", params.QuoteHandler.MountRoutes)
		}
		if params.JournalHandler != nil {
			r.Route("/journal-entries", params.JournalHandler.MountRoutes)
		}
		if params.AccountHandler != nil {
			r.Route("/accounts", params.AccountHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
