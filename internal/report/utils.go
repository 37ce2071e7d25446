package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"edgeprobe/internal/models"
)

// sanitizeFilename replaces dots and special characters for safe filenames
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		".", "_",
		":", "_",
		"/", "_",
		"\\", "_",
		" ", "_",
	)
	return replacer.Replace(s)
}

// series is one provider/tier/method over time, oldest day first.
type series struct {
	provider string
	testType models.TestType
	method   string
	rows     []models.AggregatedMetric
}

func (s *series) label() string {
	return fmt.Sprintf("%s %s %s", s.provider, s.testType, s.method)
}

// latencyPoints returns the days that have percentiles.
func (s *series) latencyPoints() (days []time.Time, p50, p90 []float64) {
	for _, r := range s.rows {
		if !r.P50Latency.Valid || !r.P90Latency.Valid {
			continue
		}
		days = append(days, models.DayStart(r.Date))
		p50 = append(p50, r.P50Latency.Float64)
		p90 = append(p90, r.P90Latency.Float64)
	}
	return days, p50, p90
}

func groupSeries(rows []models.AggregatedMetric) []*series {
	byKey := make(map[string]*series)
	var out []*series
	for _, r := range rows {
		k := string(r.TestType) + "\x00" + r.Provider + "\x00" + r.Method
		s, ok := byKey[k]
		if !ok {
			s = &series{provider: r.Provider, testType: r.TestType, method: r.Method}
			byKey[k] = s
			out = append(out, s)
		}
		s.rows = append(s.rows, r)
	}
	for _, s := range out {
		sort.Slice(s.rows, func(i, j int) bool { return s.rows[i].Date.Before(s.rows[j].Date) })
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].testType != out[j].testType {
			return out[i].testType > out[j].testType // simple before advanced
		}
		if out[i].provider != out[j].provider {
			return out[i].provider < out[j].provider
		}
		return out[i].method < out[j].method
	})
	return out
}
