package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"perth/internal/attribution"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports process uptime and host resource usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		memPercent = memStat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("failed to read memory statistics")
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.start).Seconds()),
		"cpu_percent":    cpuAvg,
		"memory_percent": memPercent,
	})
}

// handleUniverse lists active securities, optionally filtered by sector.
func (s *Server) handleUniverse(w http.ResponseWriter, r *http.Request) {
	secs, err := s.universe.List(r.URL.Query().Get("sector"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type row struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Sector   string `json:"sector"`
		Industry string `json:"industry"`
	}
	out := make([]row, 0, len(secs))
	for _, sec := range secs {
		out = append(out, row{Symbol: sec.Symbol, Name: sec.Name, Sector: sec.Sector, Industry: sec.Industry})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"securities": out, "count": len(out)})
}

func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := s.universe.Sectors()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sectors": sectors})
}

// handleRiskSummary serves the latest snapshot's headline numbers.
func (s *Server) handleRiskSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Latest(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no model snapshot available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"model_date":    snap.ModelDate,
		"factor_names":  snap.FactorNames,
		"fitted_dates":  len(snap.Dates),
		"regime":        snap.Regime,
		"regime_scale":  snap.RegimeScale,
		"specific_risk": snap.SpecificRisk,
	})
}

func (s *Server) handleCovariance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Latest(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no model snapshot available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"model_date":   snap.ModelDate,
		"factor_names": snap.FactorNames,
		"covariance":   snap.Covariance,
	})
}

// handleAttribution decomposes one security's cumulative return using the
// latest snapshot.
func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	snap, err := s.store.Latest("")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no model snapshot available")
		return
	}

	exposures, ok := snap.Exposures[symbol]
	if !ok {
		s.writeError(w, http.StatusNotFound, "no exposures for "+symbol)
		return
	}

	// Cumulative factor returns over the fitted window.
	cumulative := make([]float64, len(snap.FactorNames))
	totalFactor := 0.0
	for _, row := range snap.FactorReturns {
		for j, v := range row {
			cumulative[j] += v
		}
	}
	for j, x := range exposures {
		totalFactor += x * cumulative[j]
	}

	analyzer := attribution.NewAnalyzer(s.log)
	// The snapshot has no per-security total return; report the factor part
	// with the specific component from the stored residual vol.
	out, err := analyzer.AttributeReturn(symbol, snap.FactorNames, exposures, cumulative, totalFactor)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleRefresh triggers an immediate model refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		s.writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.refresh(ctx); err != nil {
			s.log.Error().Err(err).Msg("manual refresh failed")
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}
