package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/folio/internal/database"
)

// HealthHandlers reports process and database health.
type HealthHandlers struct {
	databases []*database.DB
	startedAt time.Time
	log       zerolog.Logger
}

// NewHealthHandlers creates health handlers over the given databases.
func NewHealthHandlers(databases []*database.DB, log zerolog.Logger) *HealthHandlers {
	return &HealthHandlers{
		databases: databases,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "health").Logger(),
	}
}

// HandleHealth handles GET /api/health
func (h *HealthHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	dbStatus := make(map[string]string, len(h.databases))
	healthy := true
	for _, db := range h.databases {
		if err := db.Conn().Ping(); err != nil {
			dbStatus[db.Name()] = "unreachable"
			healthy = false
			continue
		}
		dbStatus[db.Name()] = "ok"
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"databases":      dbStatus,
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// systemStats samples CPU over a short window so the endpoint stays fast.
func (h *HealthHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}
