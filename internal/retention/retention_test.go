package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v5"
	"go.uber.org/zap"

	"edgeprobe/internal/database"
	"edgeprobe/internal/models"
)

func newStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "ret.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db
}

func seed(t *testing.T, db *database.DB, tt models.TestType, day civil.Date) {
	t.Helper()
	ctx := context.Background()
	ts := models.DayStart(day).Add(time.Hour)
	var err error
	if tt == models.TestSimple {
		err = db.RecordSimple(ctx, models.SimpleResult{Provider: "a", Endpoint: "e", Method: "m", Timestamp: ts, Success: true, LatencyMS: null.FloatFrom(1)})
	} else {
		err = db.RecordAdvanced(ctx, models.AdvancedResult{Provider: "a", Endpoint: "e", Method: "m", Timestamp: ts, Success: true, LatencyMS: null.FloatFrom(1)})
	}
	if err != nil {
		t.Fatal(err)
	}
}

func markAggregated(t *testing.T, db *database.DB, tt models.TestType, day civil.Date) {
	t.Helper()
	err := db.UpsertAggregate(context.Background(), models.AggregatedMetric{Provider: "a", TestType: tt, Method: "m", Date: day, TotalPings: 1, SuccessRate: 1})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPurge_IndependentHorizons(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	today := civil.Date{Year: 2024, Month: 7, Day: 20}

	for _, age := range []int{1, 8, 15} {
		d := today.AddDays(-age)
		for _, tt := range models.TestTypes {
			seed(t, db, tt, d)
			markAggregated(t, db, tt, d)
		}
	}
	markAggregated(t, db, models.TestSimple, today.AddDays(-100))

	m := New(db, Policy{SimpleRawDays: 7, AdvancedRawDays: 14, AggregationDays: 90}, zap.NewNop(), nil)
	res, err := m.Purge(ctx, models.DayStart(today).Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if res.Simple != 2 {
		t.Fatalf("simple purged = %d, want 2", res.Simple)
	}
	if res.Advanced != 1 {
		t.Fatalf("advanced purged = %d, want 1", res.Advanced)
	}
	if res.Aggregates != 1 {
		t.Fatalf("aggregates purged = %d, want 1", res.Aggregates)
	}
}

func TestPurge_KeepsUnaggregatedDays(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	today := civil.Date{Year: 2024, Month: 7, Day: 20}
	old := today.AddDays(-10)
	older := today.AddDays(-9)

	seed(t, db, models.TestSimple, old)
	seed(t, db, models.TestSimple, older)
	markAggregated(t, db, models.TestSimple, older)

	m := New(db, Policy{SimpleRawDays: 7, AdvancedRawDays: 14, AggregationDays: 90}, zap.NewNop(), nil)
	res, err := m.Purge(ctx, models.DayStart(today))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if res.Simple != 0 {
		t.Fatalf("purged %d rows of an unaggregated day's window", res.Simple)
	}

	rows, _ := db.QuerySimple(ctx, models.RawQuery{})
	if len(rows) != 2 {
		t.Fatalf("rows left = %d, want 2", len(rows))
	}
}
