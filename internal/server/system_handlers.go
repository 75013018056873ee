package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/scheduler"
)

// SystemHandlers serves health and monitoring endpoints.
type SystemHandlers struct {
	dataDir   string
	ledgerDB  *database.DB
	profileDB *database.DB
	history   *scheduler.HistoryRepository // nil when job history is disabled
	log       zerolog.Logger
}

// NewSystemHandlers creates system monitoring handlers.
func NewSystemHandlers(
	dataDir string,
	ledgerDB *database.DB,
	profileDB *database.DB,
	history *scheduler.HistoryRepository,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		dataDir:   dataDir,
		ledgerDB:  ledgerDB,
		profileDB: profileDB,
		history:   history,
		log:       log.With().Str("component", "system").Logger(),
	}
}

// HandleHealth pings both databases and reports overall health.
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	databases := map[string]string{}

	for _, db := range []*database.DB{h.ledgerDB, h.profileDB} {
		if err := db.HealthCheck(ctx); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Health check failed")
			databases[db.Name()] = err.Error()
			status = "degraded"
		} else {
			databases[db.Name()] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"databases": databases,
		"time":      time.Now().Format(time.RFC3339),
	})
}

// SystemStatusResponse reports host resource usage.
type SystemStatusResponse struct {
	CPUPercent float64 `json:"cpu_percent"`
	RAMPercent float64 `json:"ram_percent"`
	RAMUsedMB  float64 `json:"ram_used_mb"`
	Uptime     string  `json:"time"`
}

// HandleSystemStatus returns CPU and memory usage.
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent, ramUsedMB := h.systemStats()

	h.writeJSON(w, http.StatusOK, SystemStatusResponse{
		CPUPercent: cpuPercent,
		RAMPercent: ramPercent,
		RAMUsedMB:  ramUsedMB,
		Uptime:     time.Now().Format(time.RFC3339),
	})
}

// DBStatsResponse reports per-database file statistics.
type DBStatsResponse struct {
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	SizeMB       float64 `json:"size_mb"`
	WALSizeMB    float64 `json:"wal_size_mb"`
	PageCount    int64   `json:"page_count"`
	PageSizeByte int64   `json:"page_size"`
}

// HandleDatabaseStats returns statistics for both databases.
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	response := make([]DBStatsResponse, 0, 2)

	for _, db := range []*database.DB{h.ledgerDB, h.profileDB} {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		response = append(response, DBStatsResponse{
			Name:         db.Name(),
			Path:         db.Path(),
			SizeMB:       float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB:    float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:    stats.PageCount,
			PageSizeByte: stats.PageSize,
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobHistory returns recent scheduled-job runs.
// GET /api/system/jobs?job=profile_refresh&limit=20
func (h *SystemHandlers) HandleJobHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusOK, []scheduler.RunRecord{})
		return
	}

	job := r.URL.Query().Get("job")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.history.GetRecent(job, limit)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// systemStats samples CPU and memory usage. The short CPU interval keeps
// the endpoint responsive for pollers.
func (h *SystemHandlers) systemStats() (float64, float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0, 0
	}

	return cpuAvg, memStat.UsedPercent, float64(memStat.Used) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
