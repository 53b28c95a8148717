package production

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/printhouse/textile-erp/internal/platform/httpx"
)

// Handler exposes production run endpoints to the back office.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers run routes. Callers mount them behind RequireAdmin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/runs", h.list)
	r.Get("/runs/{id}", h.get)
	r.Post("/runs/{id}/approve", h.approve)
	r.Post("/runs/{id}/reject", h.reject)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if filter.Status != "" && !filter.Status.IsValid() {
		httpx.RespondError(w, ErrUnknownStatus)
		return
	}
	if v := q.Get("customer_id"); v != "" {
		filter.CustomerEntityID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("order_id"); v != "" {
		filter.OrderID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	runs, err := h.service.ListRuns(r.Context(), filter)
	if err != nil {
		h.logger.Error("list production runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.ApproveRun)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.RejectRun)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*Run, error)) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	run, err := fn(r.Context(), id)
	if err != nil {
		h.logger.Warn("decide production run", slog.Int64("run_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}
