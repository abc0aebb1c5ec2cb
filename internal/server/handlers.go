package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/insight/internal/work"
)

const historyLimit = 30

// handleMarketData returns recent OHLCV rows for a ticker.
// GET /api/market-data/{ticker}
func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	company, err := s.cfg.Universe.GetByTicker(r.Context(), ticker)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if company == nil {
		s.writeError(w, http.StatusNotFound, nil)
		return
	}

	points, err := s.cfg.MarketData.History(r.Context(), company.ID, historyLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"ticker": company.Ticker,
		"name":   company.Name,
		"points": points,
	})
}

// handleReportToday returns the cached daily report, or 404 when no
// report exists for today.
// GET /api/report/today
func (s *Server) handleReportToday(w http.ResponseWriter, r *http.Request) {
	raw, err := s.cfg.Cache.GetIfFresh(r.Context(), work.ReportCacheKey(time.Now()))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if raw == nil {
		s.writeError(w, http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// handleAlerts returns all alerts.
// GET /api/alerts
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Alerts.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, map[string]interface{}{"alerts": list})
}

// handleRunJob enqueues a registered job by name.
// POST /api/jobs/{name}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if !s.cfg.Registry.Has(name) {
		s.writeError(w, http.StatusNotFound, nil)
		return
	}

	var payload work.Payload
	if r.Body != nil {
		// Optional payload, e.g. {"ticker": "AAPL"}.
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body) > 0 {
			payload = work.Payload(body)
		}
	}

	if !s.cfg.Pool.Enqueue(name, payload) {
		s.writeError(w, http.StatusServiceUnavailable, nil)
		return
	}

	s.log.Info().Str("job", name).Msg("Manual job trigger")
	s.writeJSON(w, map[string]string{"status": "enqueued", "job": name})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if err != nil {
		s.log.Error().Err(err).Int("status", status).Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
}
