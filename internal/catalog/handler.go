package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/printhouse/textile-erp/internal/platform/httpx"
)

// Handler exposes the catalog as JSON endpoints.
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

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/designs", h.listDesigns)
	r.Get("/designs/{id}", h.getDesign)
	r.Get("/fabrics", h.listFabrics)
	r.Get("/fabrics/{id}", h.getFabric)

	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAdmin)
		r.Post("/designs", h.addDesign)
		r.Put("/designs/{id}", h.updateDesign)
		r.Delete("/designs/{id}", h.deleteDesign)
		r.Post("/fabrics", h.addFabric)
	})
}

func (h *Handler) listDesigns(w http.ResponseWriter, r *http.Request) {
	designs, err := h.service.ListPresetDesigns(r.Context())
	if err != nil {
		h.logger.Error("list preset designs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, designs)
}

func (h *Handler) getDesign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	design, err := h.service.GetPresetDesign(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, design)
}

func (h *Handler) addDesign(w http.ResponseWriter, r *http.Request) {
	var input PresetDesignInput
	if err := httpx.Decode(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	design, err := h.service.AddPresetDesign(r.Context(), input)
	if err != nil {
		h.logger.Error("add preset design", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, design)
}

func (h *Handler) updateDesign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input PresetDesignInput
	if err := httpx.Decode(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	design, err := h.service.UpdatePresetDesign(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, design)
}

func (h *Handler) deleteDesign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePresetDesign(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listFabrics(w http.ResponseWriter, r *http.Request) {
	fabrics, err := h.service.ListFactoryFabrics(r.Context())
	if err != nil {
		h.logger.Error("list factory fabrics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fabrics)
}

func (h *Handler) getFabric(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fabric, err := h.service.GetFactoryFabric(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fabric)
}

func (h *Handler) addFabric(w http.ResponseWriter, r *http.Request) {
	var input FactoryFabricInput
	if err := httpx.Decode(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fabric, err := h.service.AddFactoryFabric(r.Context(), input)
	if err != nil {
		h.logger.Error("add factory fabric", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fabric)
}
