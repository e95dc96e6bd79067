package statistics

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/marketdata"
)

// Handler exposes return and covariance estimates over HTTP.
type Handler struct {
	service             *Service
	defaultLookbackDays int
	log                 zerolog.Logger
}

// NewHandler creates a statistics handler.
func NewHandler(service *Service, defaultLookbackDays int, log zerolog.Logger) *Handler {
	return &Handler{
		service:             service,
		defaultLookbackDays: defaultLookbackDays,
		log:                 log.With().Str("handler", "statistics").Logger(),
	}
}

// RegisterRoutes mounts the statistics endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/statistics", h.HandleGetStatistics)
	r.Post("/statistics/rebuild", h.HandleRebuild)
}

// HandleGetStatistics handles GET /api/statistics?tickers=AAA,BBB&lookback_days=252
func (h *Handler) HandleGetStatistics(w http.ResponseWriter, r *http.Request) {
	tickers := splitTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		h.writeError(w, http.StatusBadRequest, "tickers query parameter is required")
		return
	}

	lookback := h.defaultLookbackDays
	if raw := r.URL.Query().Get("lookback_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			h.writeError(w, http.StatusBadRequest, "lookback_days must be an integer >= 2")
			return
		}
		lookback = n
	}

	est, err := h.service.GetEstimates(tickers, lookback)
	if err != nil {
		h.respondEstimateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": est,
	})
}

// HandleRebuild handles POST /api/statistics/rebuild
func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tickers      []string `json:"tickers"`
		LookbackDays int      `json:"lookback_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Tickers) == 0 {
		h.writeError(w, http.StatusBadRequest, "tickers is required")
		return
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = h.defaultLookbackDays
	}

	est, err := h.service.Rebuild(req.Tickers, req.LookbackDays)
	if err != nil {
		h.respondEstimateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": est,
	})
}

// respondEstimateError maps data errors to 422 so callers can tell bad
// inputs from server faults.
func (h *Handler) respondEstimateError(w http.ResponseWriter, err error) {
	var dataErr *marketdata.DataError
	if errors.As(err, &dataErr) {
		h.writeError(w, http.StatusUnprocessableEntity, dataErr.Error())
		return
	}
	h.log.Error().Err(err).Msg("Failed to build estimates")
	h.writeError(w, http.StatusInternalServerError, "failed to build estimates")
}

func splitTickers(raw string) []string {
	var tickers []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers
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
