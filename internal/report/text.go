package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

func (g *Generator) generateTextReport(outputDir string, days int, now time.Time, all []*series) error {
	filename := filepath.Join(outputDir, "summary.txt")
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintf(file, "RPC Latency Report\n")
	fmt.Fprintf(file, "Generated: %s\n", now.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(file, "Period: Last %d days\n\n", days)
	fmt.Fprintln(file, strings.Repeat("=", 60))

	if len(all) == 0 {
		fmt.Fprintln(file, "\nNo aggregated data in this period.")
		return nil
	}

	var current string
	for _, s := range all {
		if heading := strings.ToUpper(string(s.testType)) + " TESTS"; heading != current {
			current = heading
			fmt.Fprintf(file, "\n%s\n", heading)
		}

		total := 0
		successes := 0.0
		var dark []string
		for _, r := range s.rows {
			total += r.TotalPings
			successes += r.SuccessRate * float64(r.TotalPings)
			if !r.P50Latency.Valid {
				dark = append(dark, r.Date.String())
			}
		}
		_, p50, p90 := s.latencyPoints()

		fmt.Fprintf(file, "%s / %s\n", s.provider, s.method)
		fmt.Fprintf(file, "  Days: %d\n", len(s.rows))
		fmt.Fprintf(file, "  Total Pings: %d\n", total)
		if total > 0 {
			fmt.Fprintf(file, "  Success Rate: %.2f%%\n", successes/float64(total)*100)
		}
		if len(p50) > 0 {
			fmt.Fprintf(file, "  Median Daily p50: %.2f ms\n", median(p50))
			fmt.Fprintf(file, "  Worst Daily p90: %.2f ms\n", maxOf(p90))
		}
		if len(dark) > 0 {
			fmt.Fprintf(file, "  Days Without Successful Calls: %s\n", strings.Join(dark, ", "))
		}
		fmt.Fprintln(file)
	}

	fmt.Fprintln(file, strings.Repeat("=", 60))
	fmt.Fprintln(file, "\nCharts are available in the accompanying files.")
	return nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
