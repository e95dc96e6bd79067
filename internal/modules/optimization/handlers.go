package optimization

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler exposes the optimizer over HTTP.
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates an optimization handler.
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// RegisterRoutes mounts the optimizer endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/optimize", h.HandleOptimize)
	r.Post("/frontier", h.HandleSweep)
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode optimize request")
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sol, err := h.service.Optimize(r.Context(), req)
	if err != nil {
		h.respondSolveError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": sol,
	})
}

// HandleSweep handles POST /api/frontier
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode sweep request")
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	points, err := h.service.Sweep(r.Context(), req)
	if err != nil {
		h.respondSolveError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"points": points,
		},
	})
}

// respondSolveError maps the error taxonomy onto HTTP statuses.
func (h *Handler) respondSolveError(w http.ResponseWriter, err error) {
	var infeasible *InfeasibleError
	if errors.As(err, &infeasible) {
		h.writeError(w, http.StatusUnprocessableEntity, infeasible.Error())
		return
	}

	var solverErr *SolverError
	if errors.As(err, &solverErr) {
		h.log.Error().Err(err).Msg("Solver failure")
		h.writeError(w, http.StatusBadGateway, solverErr.Error())
		return
	}

	h.log.Error().Err(err).Msg("Optimization failed")
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": msg,
	})
}
