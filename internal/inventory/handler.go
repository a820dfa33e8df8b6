package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock adjustments.
type Handler struct {
	logger    *slog.Logger
	adjuster  *Adjuster
	validator *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, adjuster *Adjuster) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, adjuster: adjuster, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/movements", h.handleStockCard)
	r.Put("/products/{id}/stock", h.handleSetStock)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.adjuster.StockCard(r.Context(), id, httpx.IntQuery(r, "limit", 50))
	if err != nil {
		h.logger.Log(r.Context(), httpx.LogLevel(err), "stock card", slog.Any("error", err), slog.Int64("product_id", id))
		httpx.RespondError(w, err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "movements": movements})
}

type setStockRequest struct {
	Stock *int   `json:"stock" validate:"required,gte=0"`
	Note  string `json:"note" validate:"max=500"`
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.adjuster.Set(r.Context(), id, *req.Stock, Ref{Module: RefManual, Note: req.Note})
	if err != nil {
		h.logger.Log(r.Context(), httpx.LogLevel(err), "set stock", slog.Any("error", err), slog.Int64("product_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}
