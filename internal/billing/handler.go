package billing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/printhouse/textile-erp/internal/platform/httpx"
	"github.com/printhouse/textile-erp/internal/shared"
)

const draftTimeout = 15 * time.Second

// CreateInvoiceRequest is the payload for POST /invoices.
type CreateInvoiceRequest struct {
	CustomerEntityID int64            `json:"customer_entity_id" validate:"required,gt=0"`
	PeriodStart      string           `json:"period_start" validate:"required"`
	PeriodEnd        string           `json:"period_end" validate:"required"`
	DiscountPct      decimal.Decimal  `json:"discount_pct"`
	VatPct           *decimal.Decimal `json:"vat_pct"`
	AsDraft          bool             `json:"as_draft"`
	Notes            string           `json:"notes" validate:"max=1000"`
}

// UpdateStatusRequest is the payload for POST /invoices/{id}/status.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// Handler exposes billing endpoints to the back office.
type Handler struct {
	logger  *slog.Logger
	service *Service
	drafts  singleflight.Group
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers billing routes. Callers mount them behind RequireAdmin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/draft", h.draft)
	r.Get("/summary", h.summary)
	r.Get("/invoices", h.list)
	r.Post("/invoices", h.create)
	r.Get("/invoices/{id}", h.get)
	r.Post("/invoices/{id}/status", h.updateStatus)
	r.Delete("/invoices/{id}", h.delete)
}

// draft previews an invoice. Identical concurrent previews share one query.
func (h *Handler) draft(w http.ResponseWriter, r *http.Request) {
	params, err := h.draftParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := fmt.Sprintf("%d|%d|%d|%s|%s", params.CustomerEntityID,
		params.PeriodStart.UnixNano(), params.PeriodEnd.UnixNano(),
		params.DiscountPct.String(), params.VatPct.String())
	// The shared query outlives any one caller; each caller only stops waiting.
	ch := h.drafts.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), draftTimeout)
		defer cancel()
		return h.service.BuildDraft(ctx, params)
	})
	select {
	case <-r.Context().Done():
		return
	case res := <-ch:
		if res.Err != nil {
			httpx.RespondError(w, res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, res.Val)
	}
}

func (h *Handler) draftParams(r *http.Request) (DraftParams, error) {
	q := r.URL.Query()
	var params DraftParams
	id, err := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	if err != nil || id <= 0 {
		return params, fmt.Errorf("%w: customer_id required", shared.ErrValidation)
	}
	params.CustomerEntityID = id
	if params.PeriodStart, params.PeriodEnd, err = ParsePeriod(q.Get("from"), q.Get("to")); err != nil {
		return params, err
	}
	if params.DiscountPct, err = percentParam(q.Get("discount_pct"), decimal.Zero); err != nil {
		return params, err
	}
	if params.VatPct, err = percentParam(q.Get("vat_pct"), h.service.DefaultVATPct()); err != nil {
		return params, err
	}
	return params, nil
}

func percentParam(v string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid percentage %q", shared.ErrValidation, v)
	}
	return d, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, end, err := ParsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	vat := h.service.DefaultVATPct()
	if req.VatPct != nil {
		vat = *req.VatPct
	}
	inv, err := h.service.CreateInvoice(r.Context(), CreateParams{
		DraftParams: DraftParams{
			CustomerEntityID: req.CustomerEntityID,
			PeriodStart:      start,
			PeriodEnd:        end,
			DiscountPct:      req.DiscountPct,
			VatPct:           vat,
		},
		AsDraft: req.AsDraft,
		Notes:   req.Notes,
	})
	if err != nil {
		h.logger.Warn("create invoice", slog.Int64("customer_entity_id", req.CustomerEntityID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if v := q.Get("customer_id"); v != "" {
		filter.CustomerEntityID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
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
	inv, err := h.service.UpdateInvoiceStatus(r.Context(), id, req.Status)
	if err != nil {
		h.logger.Warn("update invoice status", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteInvoice(r.Context(), id); err != nil {
		h.logger.Warn("delete invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context())
	if err != nil {
		h.logger.Error("billing summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

// ParsePeriod reads a from/to pair. Date-only values cover whole days.
func ParsePeriod(from, to string) (time.Time, time.Time, error) {
	start, _, err := parseBound(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, dateOnly, err := parseBound(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: invalid period bound %q", shared.ErrValidation, v)
	}
	return t, false, nil
}
