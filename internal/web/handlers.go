package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"edgeprobe/internal/models"
)

const (
	defaultDays = 7
	maxDays     = 90
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

type providerInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// handleProviders handles /providers requests
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	out := make([]providerInfo, 0, len(s.cfg.Providers))
	for _, p := range s.cfg.Providers {
		out = append(out, providerInfo{Name: p.Name, URL: p.URL})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseDays reads the days parameter, bounded to [1, maxDays].
func parseDays(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxDays {
		return 0, fmt.Errorf("days must be an integer between 1 and %d", maxDays)
	}
	return days, nil
}

// handleLatency serves daily rows for one tier over the last N elapsed days
func (s *Server) handleLatency(tt models.TestType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := parseDays(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		today := models.Today(s.now())
		q := models.AggregateQuery{
			TestType: tt,
			Provider: r.URL.Query().Get("provider"),
			From:     today.AddDays(-days),
			To:       today,
		}
		if tt == models.TestAdvanced {
			q.Method = r.URL.Query().Get("method")
		}

		rows, err := s.store.QueryAggregates(r.Context(), q)
		if err != nil {
			s.logger.Error("latency query failed", zap.String("test_type", string(tt)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if rows == nil {
			rows = []models.AggregatedMetric{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

type advancedMethod struct {
	Name       string `json:"name"`
	Method     string `json:"method"`
	Complexity string `json:"complexity"`
}

type methodSet struct {
	Simple   string           `json:"simple"`
	Advanced []advancedMethod `json:"advanced"`
}

// handleMethods handles /methods requests
func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]methodSet, len(s.cfg.Providers))
	for _, p := range s.cfg.Providers {
		set := methodSet{Simple: p.Methods.Simple.Method, Advanced: []advancedMethod{}}
		for _, st := range p.EnabledSubTests() {
			set.Advanced = append(set.Advanced, advancedMethod{Name: st.Name, Method: st.Method, Complexity: st.Complexity})
		}
		out[p.Name] = set
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStatus handles /status requests
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := s.tracker.Report()
	if s.sampler != nil {
		stats, err := s.sampler.Sample(r.Context())
		if err != nil {
			s.logger.Debug("system figures incomplete", zap.Error(err))
		}
		report.System = &stats
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHealth answers 503 only when the service is CRITICAL
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.tracker.Report().Status
	code := http.StatusOK
	if status == models.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]models.HealthStatus{"status": status})
}
