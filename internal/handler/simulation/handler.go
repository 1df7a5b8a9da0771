package simulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
	"github.com/ItsSitanshu/dhyan.ai/backend/pkg/utils"
)

// Handler serves the simulation catalog.
type Handler struct {
	catalog simulation.Catalog
}

// New creates the catalog handler.
func New(catalog simulation.Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// RegisterRoutes mounts the catalog routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/simulations", h.handleList)
	r.Get("/simulations/{simulationID}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.catalog.List())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.catalog.Lookup(chi.URLParam(r, "simulationID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "simulation not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sim)
}
