package invoice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/br7tech/billdesk/internal/billing"
	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// ErrPDFUnavailable is returned when no PDF converter is configured.
var ErrPDFUnavailable = errors.New("invoice: pdf export not configured")

// BillSource loads persisted bills.
type BillSource interface {
	GetBill(ctx context.Context, id int64) (billing.Bill, error)
	GetServiceBill(ctx context.Context, id int64) (billing.ServiceBill, error)
}

// Handler serves printable invoices.
type Handler struct {
	logger   *slog.Logger
	bills    BillSource
	renderer *Renderer
	shop     Shop
}

// NewHandler constructs the invoice handler.
func NewHandler(logger *slog.Logger, bills BillSource, renderer *Renderer, shop Shop) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, bills: bills, renderer: renderer, shop: shop}
}

// MountBillRoutes registers invoice routes on the /bills sub-router.
func (h *Handler) MountBillRoutes(r chi.Router) {
	r.Get("/{id}/invoice", h.billHTML)
	r.Get("/{id}/invoice.pdf", h.billPDF)
}

// MountServiceBillRoutes registers invoice routes on the /service-bills sub-router.
func (h *Handler) MountServiceBillRoutes(r chi.Router) {
	r.Get("/{id}/invoice", h.serviceBillHTML)
	r.Get("/{id}/invoice.pdf", h.serviceBillPDF)
}

func (h *Handler) loadBill(w http.ResponseWriter, r *http.Request) (BillView, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return BillView{}, false
	}
	bill, err := h.bills.GetBill(r.Context(), id)
	if err != nil {
		h.logger.Log(r.Context(), httpx.LogLevel(err), "load bill for invoice", slog.Int64("bill_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return BillView{}, false
	}
	return NewBillView(h.shop, bill), true
}

func (h *Handler) loadServiceBill(w http.ResponseWriter, r *http.Request) (ServiceBillView, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return ServiceBillView{}, false
	}
	bill, err := h.bills.GetServiceBill(r.Context(), id)
	if err != nil {
		h.logger.Log(r.Context(), httpx.LogLevel(err), "load service bill for invoice", slog.Int64("service_bill_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return ServiceBillView{}, false
	}
	return NewServiceBillView(h.shop, bill), true
}

func (h *Handler) billHTML(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadBill(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.Bill(&buf, view); err != nil {
		h.logger.Error("render invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (h *Handler) serviceBillHTML(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadServiceBill(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.ServiceBill(&buf, view); err != nil {
		h.logger.Error("render service invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (h *Handler) billPDF(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadBill(w, r)
	if !ok {
		return
	}
	pdf, err := h.renderer.BillPDF(r.Context(), view)
	h.writePDF(w, view.Number, pdf, err)
}

func (h *Handler) serviceBillPDF(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadServiceBill(w, r)
	if !ok {
		return
	}
	pdf, err := h.renderer.ServiceBillPDF(r.Context(), view)
	h.writePDF(w, view.Number, pdf, err)
}

func (h *Handler) writePDF(w http.ResponseWriter, number string, pdf []byte, err error) {
	if err != nil {
		h.logger.Warn("invoice pdf", slog.String("number", number), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "PDF Export Failed", "could not render invoice pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", number+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
