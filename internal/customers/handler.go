package customers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/printhouse/textile-erp/internal/platform/httpx"
)

// Handler exposes admin customer lookups.
type Handler struct {
	directory *Directory
}

// NewHandler builds Handler instance.
func NewHandler(directory *Directory) *Handler {
	return &Handler{directory: directory}
}

// MountRoutes registers customer routes. Callers mount them behind RequireAdmin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Put("/{id}/name", h.rename)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.directory.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req renameRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.directory.Rename(r.Context(), id, req.Name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
