package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v5"
	"go.uber.org/zap"

	"edgeprobe/internal/database"
	"edgeprobe/internal/models"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"rpc.example.com", "rpc_example_com"},
		{"a/b c:d", "a_b_c_d"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGroupSeries(t *testing.T) {
	d := civil.Date{Year: 2024, Month: 3, Day: 1}
	rows := []models.AggregatedMetric{
		{Provider: "b", TestType: models.TestSimple, Method: "m", Date: d.AddDays(1)},
		{Provider: "a", TestType: models.TestAdvanced, Method: "blk", Date: d},
		{Provider: "b", TestType: models.TestSimple, Method: "m", Date: d},
	}
	got := groupSeries(rows)
	if len(got) != 2 {
		t.Fatalf("series = %d, want 2", len(got))
	}
	if got[0].testType != models.TestSimple || got[0].rows[0].Date != d {
		t.Fatalf("simple series should come first, oldest day first: %+v", got[0])
	}
}

func TestMedian(t *testing.T) {
	if m := median([]float64{3, 1, 2}); m != 2 {
		t.Fatalf("median = %v", m)
	}
	if m := median([]float64{4, 1, 3, 2}); m != 2.5 {
		t.Fatalf("median = %v", m)
	}
}

func TestGenerateReport(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "report.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}

	today := civil.Date{Year: 2024, Month: 3, Day: 15}
	for i := 1; i <= 10; i++ {
		m := models.AggregatedMetric{Provider: "rpc.alpha", Endpoint: "https://alpha", TestType: models.TestSimple, Method: "getSlot",
			Date: today.AddDays(-i), P50Latency: null.FloatFrom(float64(20 + i)), P90Latency: null.FloatFrom(float64(40 + i)),
			TotalPings: 100, SuccessRate: 0.99}
		if i == 4 {
			m.P50Latency, m.P90Latency, m.SuccessRate = null.Float{}, null.Float{}, 0
		}
		if err := db.UpsertAggregate(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	g := NewGenerator(db, zap.NewNop())
	g.now = func() time.Time { return models.DayStart(today).Add(time.Hour) }

	dir, err := g.GenerateReport(ctx, t.TempDir(), 14)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	for _, name := range []string{"latency_simple_rpc_alpha_getSlot.png", "success_rate_simple.png", "summary.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	summary, err := os.ReadFile(filepath.Join(dir, "summary.txt"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(summary)
	for _, want := range []string{"SIMPLE TESTS", "rpc.alpha / getSlot", "Total Pings: 1000", today.AddDays(-4).String()} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestGenerateReport_SkipsSeriesWithOneDay(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "report.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}

	today := civil.Date{Year: 2024, Month: 3, Day: 15}
	err = db.UpsertAggregate(ctx, models.AggregatedMetric{Provider: "rpc.new", Endpoint: "https://new", TestType: models.TestSimple,
		Method: "getSlot", Date: today.AddDays(-1), P50Latency: null.FloatFrom(20), P90Latency: null.FloatFrom(35),
		TotalPings: 50, SuccessRate: 1})
	if err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(db, zap.NewNop())
	g.now = func() time.Time { return models.DayStart(today).Add(time.Hour) }

	dir, err := g.GenerateReport(ctx, t.TempDir(), 7)
	if err != nil {
		t.Fatalf("a one-day series should not fail the report: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "latency_simple_rpc_new_getSlot.png")); !os.IsNotExist(err) {
		t.Fatalf("expected no chart for a one-day series, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.txt")); err != nil {
		t.Fatalf("summary missing: %v", err)
	}
}
