package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/printhouse/textile-erp/internal/platform/httpx"
	"github.com/printhouse/textile-erp/internal/shared"
)

// Handler exposes order endpoints.
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

// MountRoutes registers customer facing routes. Every route needs an identity.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(httpx.RequireIdentity)
	r.Get("/", h.listMine)
	r.Post("/", h.create)
	r.Post("/quotations", h.createQuotation)
	r.Post("/price-quote", h.priceQuote)
	r.Get("/{id}", h.get)
	r.Post("/{id}/repeat", h.repeat)
}

// MountAdminRoutes registers back-office routes. Callers mount them behind RequireAdmin.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/status", h.updateStatus)
	r.Post("/{id}/finalize-quotation", h.finalizeQuotation)
	r.Post("/{id}/reprocess", h.reprocess)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.IdentityFromContext(r.Context())
	order, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		UserID:             caller.UserID,
		IdempotencyKey:     r.Header.Get(shared.IdempotencyHeader),
		CreateOrderRequest: req,
	})
	if err != nil {
		h.logger.Warn("create order", slog.Int64("user_id", caller.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) createQuotation(w http.ResponseWriter, r *http.Request) {
	var req QuotationRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.IdentityFromContext(r.Context())
	order, err := h.service.CreateQuotationRequest(r.Context(), QuotationInput{
		UserID:           caller.UserID,
		IdempotencyKey:   r.Header.Get(shared.IdempotencyHeader),
		QuotationRequest: req,
	})
	if err != nil {
		h.logger.Warn("create quotation request", slog.Int64("user_id", caller.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) priceQuote(w http.ResponseWriter, r *http.Request) {
	var in LineInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.IdentityFromContext(r.Context())
	quote, err := h.service.QuotePrice(r.Context(), caller.UserID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context())
	orders, err := h.service.GetOrdersByUserID(r.Context(), caller.UserID)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

// get serves both customers and admins; customers only see their own orders.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrderByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.IdentityFromContext(r.Context())
	if !caller.IsAdmin() && (caller == nil || order.UserID != caller.UserID) {
		httpx.RespondError(w, ErrNotOwner)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) repeat(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RepeatOrderRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.IdentityFromContext(r.Context())
	order, err := h.service.RepeatOrder(r.Context(), id, caller.UserID, req.CustomerType)
	if err != nil {
		h.logger.Warn("repeat order", slog.Int64("source_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Kind: Kind(q.Get("kind"))}
	if v := q.Get("user_id"); v != "" {
		filter.UserID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateStatusRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) finalizeQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req FinalizeQuotationRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.FinalizeQuotation(r.Context(), id, req)
	if err != nil {
		h.logger.Warn("finalize quotation", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.ReprocessOrder(r.Context(), id)
	if err != nil {
		h.logger.Error("reprocess order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"runs_created": created})
}
