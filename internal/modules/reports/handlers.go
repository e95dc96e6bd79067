package reports

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultListLimit = 50

// Handler exposes stored runs over HTTP.
type Handler struct {
	repo     *Repository
	exporter *S3Exporter // nil when export is not configured
	log      zerolog.Logger
}

// NewHandler creates a reports handler.
func NewHandler(repo *Repository, exporter *S3Exporter, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		exporter: exporter,
		log:      log.With().Str("handler", "reports").Logger(),
	}
}

// RegisterRoutes mounts the report endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/runs", h.HandleListRuns)
	r.Get("/runs/{id}", h.HandleGetRun)
	r.Post("/runs/{id}/export", h.HandleExportRun)
}

// HandleListRuns handles GET /api/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.repo.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs": runs,
		},
	})
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.repo.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to load run")
		h.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": run,
	})
}

// HandleExportRun handles POST /api/runs/{id}/export
func (h *Handler) HandleExportRun(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		h.writeError(w, http.StatusNotImplemented, "report export is not configured")
		return
	}

	run, err := h.repo.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	key, err := h.exporter.Export(r.Context(), run)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to export run")
		h.writeError(w, http.StatusBadGateway, "failed to export run")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"key": key,
		},
	})
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
