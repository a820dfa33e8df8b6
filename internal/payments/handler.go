package payments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/br7tech/billdesk/internal/platform/httpx"
	"github.com/br7tech/billdesk/internal/shared"
)

// Handler exposes payments over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	loc       *time.Location
	validator *validator.Validate
}

// NewHandler constructs the payments handler. Ledger date filters are read
// as calendar days in loc; nil means the server's local zone.
func NewHandler(logger *slog.Logger, service *Service, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handler{logger: logger, service: service, loc: loc, validator: validator.New()}
}

// MountRoutes registers routes on a /payments sub-router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/advance", h.listAdvance)
	r.Get("/ledger/{clientID}", h.ledger)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/history", h.history)
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

func actor(r *http.Request) int64 {
	id, _ := shared.UserIDFromContext(r.Context())
	return id
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		ClientID: int64(httpx.IntQuery(r, "client_id", 0)),
		Limit:    httpx.IntQuery(r, "limit", 50),
		Offset:   httpx.IntQuery(r, "offset", 0),
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": items, "pagination": page})
}

func (h *Handler) listAdvance(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.service.ListAdvance(r.Context(), httpx.IntQuery(r, "limit", 50), httpx.IntQuery(r, "offset", 0))
	if err != nil {
		h.fail(w, "list advance payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": items, "pagination": page})
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.IDParam(r, "clientID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	dates, err := shared.ParseDateRange(q.Get("date"), q.Get("from"), q.Get("to"), time.Now(), h.loc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ledger, err := h.service.ClientLedger(r.Context(), clientID, LedgerFilter{Dates: dates, Invoice: q.Get("invoice")})
	if err != nil {
		h.fail(w, "client ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	in.ActorID = actor(r)
	p, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	in.ActorID = actor(r)
	p, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, actor(r)); err != nil {
		h.fail(w, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.fail(w, "payment history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": entries})
}
