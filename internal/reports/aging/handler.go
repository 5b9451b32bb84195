package aging

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/probookkeeper/probookkeeper/internal/platform/httpx"
)

// Handler manages aging report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/aging/receivables", h.receivables)
	r.Get("/aging/payables", h.payables)
	r.Get("/aging", h.combined)
}

func (h *Handler) receivables(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Receivables(r.Context())
	if err != nil {
		h.logger.Error("aged receivables report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) payables(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Payables(r.Context())
	if err != nil {
		h.logger.Error("aged payables report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) combined(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Combined(r.Context())
	if err != nil {
		h.logger.Error("combined aging report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
