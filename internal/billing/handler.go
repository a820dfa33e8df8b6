package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/br7tech/billdesk/internal/platform/httpx"
	"github.com/br7tech/billdesk/internal/shared"
)

// IdempotencyHeader may carry the draft key instead of the body.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes bill submission and history over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	loc       *time.Location
	validator *validator.Validate
}

// NewHandler constructs the billing handler. Date filters are read as
// calendar days in loc; nil means the server's local zone.
func NewHandler(logger *slog.Logger, service *Service, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handler{logger: logger, service: service, loc: loc, validator: validator.New()}
}

// MountBillRoutes registers product bill routes on a /bills sub-router.
func (h *Handler) MountBillRoutes(r chi.Router) {
	r.Get("/", h.listBills)
	r.Post("/", h.submitBill)
	r.Post("/preview", h.previewBill)
	r.Get("/{id}", h.getBill)
	r.Delete("/{id}", h.deleteBill)
}

// MountServiceBillRoutes registers service bill routes on a /service-bills sub-router.
func (h *Handler) MountServiceBillRoutes(r chi.Router) {
	r.Get("/", h.listServiceBills)
	r.Post("/", h.submitServiceBill)
	r.Get("/{id}", h.getServiceBill)
	r.Put("/{id}", h.updateServiceBill)
	r.Delete("/{id}", h.deleteServiceBill)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.IsClientError(err) {
		h.logger.Warn(msg, slog.Any("error", err))
	} else {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) filterFromRequest(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	dates, err := shared.ParseDateRange(q.Get("date"), q.Get("from"), q.Get("to"), time.Now(), h.loc)
	if err != nil {
		return ListFilter{}, err
	}
	return ListFilter{
		ClientID: int64(httpx.IntQuery(r, "client_id", 0)),
		Dates:    dates,
		Query:    q.Get("q"),
		Limit:    httpx.IntQuery(r, "limit", 20),
		Offset:   httpx.IntQuery(r, "offset", 0),
	}, nil
}

func actor(r *http.Request) int64 {
	id, _ := shared.UserIDFromContext(r.Context())
	return id
}

func idempotencyKey(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	return r.Header.Get(IdempotencyHeader)
}

func (h *Handler) submitBill(w http.ResponseWriter, r *http.Request) {
	var in SubmitBillInput
	if !h.decode(w, r, &in) {
		return
	}
	in.IdempotencyKey = idempotencyKey(r, in.IdempotencyKey)
	in.ActorID = actor(r)
	bill, err := h.service.SubmitBill(r.Context(), in)
	if err != nil {
		h.fail(w, "submit bill", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) previewBill(w http.ResponseWriter, r *http.Request) {
	var in SubmitBillInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	draft, err := h.service.Preview(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"client":          draft.Client(),
		"items":           draft.Items(),
		"total":           draft.Total(),
		"discount":        draft.Discount(),
		"payable":         draft.Payable(),
		"idempotency_key": draft.IdempotencyKey(),
	})
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	filter, err := h.filterFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bills, page, err := h.service.ListBills(r.Context(), filter)
	if err != nil {
		h.fail(w, "list bills", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": bills, "pagination": page})
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.GetBill(r.Context(), id)
	if err != nil {
		h.fail(w, "get bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) deleteBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteBill(r.Context(), id, actor(r)); err != nil {
		h.fail(w, "delete bill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitServiceBill(w http.ResponseWriter, r *http.Request) {
	var in SubmitServiceBillInput
	if !h.decode(w, r, &in) {
		return
	}
	in.IdempotencyKey = idempotencyKey(r, in.IdempotencyKey)
	in.ActorID = actor(r)
	bill, err := h.service.SubmitServiceBill(r.Context(), in)
	if err != nil {
		h.fail(w, "submit service bill", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) updateServiceBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in SubmitServiceBillInput
	if !h.decode(w, r, &in) {
		return
	}
	in.ActorID = actor(r)
	bill, err := h.service.UpdateServiceBill(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update service bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) listServiceBills(w http.ResponseWriter, r *http.Request) {
	filter, err := h.filterFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bills, page, err := h.service.ListServiceBills(r.Context(), filter)
	if err != nil {
		h.fail(w, "list service bills", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"service_bills": bills, "pagination": page})
}

func (h *Handler) getServiceBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.GetServiceBill(r.Context(), id)
	if err != nil {
		h.fail(w, "get service bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) deleteServiceBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteServiceBill(r.Context(), id, actor(r)); err != nil {
		h.fail(w, "delete service bill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
