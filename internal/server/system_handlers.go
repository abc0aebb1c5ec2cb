package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth reports process and database health.
// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	if err := s.cfg.DB.QuickCheck(r.Context()); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	cpuAvg, memUsed := s.systemStats()

	resp := map[string]interface{}{
		"status":           status,
		"database":         dbStatus,
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"cpu_percent":      cpuAvg,
		"mem_used_percent": memUsed,
		"jobs":             s.cfg.Registry.Names(),
	}

	if stats, err := s.cfg.DB.GetStats(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get database statistics")
	} else {
		resp["db_size_bytes"] = stats.SizeBytes
		resp["db_wal_size_bytes"] = stats.WALSizeBytes
	}

	s.writeJSON(w, resp)
}

// systemStats returns average CPU and RAM usage percentages. A short
// sampling window keeps the endpoint fast for pollers.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
