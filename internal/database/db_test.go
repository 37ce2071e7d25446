package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v5"

	"edgeprobe/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return db
}

func at(day civil.Date, hour int) time.Time {
	return models.DayStart(day).Add(time.Duration(hour) * time.Hour)
}

func TestRecordAndQuerySimple(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	day := civil.Date{Year: 2024, Month: 5, Day: 10}

	ok := models.SimpleResult{Provider: "a", Endpoint: "https://a", Method: "getSlot",
		Timestamp: at(day, 1).Add(123 * time.Millisecond), LatencyMS: null.FloatFrom(42.5), Success: true}
	bad := models.SimpleResult{Provider: "a", Endpoint: "https://a", Method: "getSlot",
		Timestamp: at(day, 2), Success: false, Error: null.StringFrom("Request timed out")}
	other := models.SimpleResult{Provider: "b", Endpoint: "https://b", Method: "getSlot",
		Timestamp: at(day, 3), LatencyMS: null.FloatFrom(10), Success: true}

	for _, r := range []models.SimpleResult{ok, bad, other} {
		if err := db.RecordSimple(ctx, r); err != nil {
			t.Fatalf("RecordSimple: %v", err)
		}
	}

	got, err := db.QuerySimple(ctx, models.RawQuery{Provider: "a", From: models.DayStart(day), To: models.DayStart(day.AddDays(1))})
	if err != nil {
		t.Fatalf("QuerySimple: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(ok.Timestamp) || got[0].LatencyMS.Float64 != 42.5 || !got[0].Success {
		t.Fatalf("first row wrong: %+v", got[0])
	}
	if got[1].LatencyMS.Valid || got[1].Error.String != "Request timed out" || got[1].Success {
		t.Fatalf("failure row wrong: %+v", got[1])
	}
}

func TestRecordAndQueryAdvanced(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	day := civil.Date{Year: 2024, Month: 5, Day: 10}

	r := models.AdvancedResult{Provider: "a", Endpoint: "https://a", Method: "block", RPCMethod: "getBlock",
		Complexity: "high", Timestamp: at(day, 4), LatencyMS: null.FloatFrom(300), Success: true}
	if err := db.RecordAdvanced(ctx, r); err != nil {
		t.Fatalf("RecordAdvanced: %v", err)
	}
	got, err := db.QueryAdvanced(ctx, models.RawQuery{Method: "block"})
	if err != nil {
		t.Fatalf("QueryAdvanced: %v", err)
	}
	if len(got) != 1 || got[0].RPCMethod != "getBlock" || got[0].Complexity != "high" {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestUpsertAggregateReplaces(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	day := civil.Date{Year: 2024, Month: 5, Day: 10}

	m := models.AggregatedMetric{Provider: "a", Endpoint: "https://a", TestType: models.TestSimple, Method: "getSlot",
		Date: day, P50Latency: null.FloatFrom(30), P90Latency: null.FloatFrom(50), TotalPings: 5, SuccessRate: 1}
	if err := db.UpsertAggregate(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.TotalPings = 6
	m.P50Latency = null.Float{}
	if err := db.UpsertAggregate(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, err := db.QueryAggregates(ctx, models.AggregateQuery{TestType: models.TestSimple})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want exactly one per key", len(got))
	}
	if got[0].TotalPings != 6 || got[0].P50Latency.Valid || got[0].Date != day {
		t.Fatalf("row not replaced: %+v", got[0])
	}
}

func TestQueryAggregatesFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := civil.Date{Year: 2024, Month: 5, Day: 1}

	for i := 0; i < 5; i++ {
		for _, p := range []string{"b", "a"} {
			m := models.AggregatedMetric{Provider: p, TestType: models.TestAdvanced, Method: "block", Date: base.AddDays(i), TotalPings: 1, SuccessRate: 1}
			if err := db.UpsertAggregate(ctx, m); err != nil {
				t.Fatal(err)
			}
		}
	}
	other := models.AggregatedMetric{Provider: "a", TestType: models.TestSimple, Method: "getSlot", Date: base, TotalPings: 1}
	if err := db.UpsertAggregate(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, err := db.QueryAggregates(ctx, models.AggregateQuery{TestType: models.TestAdvanced, From: base.AddDays(1), To: base.AddDays(4)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("rows = %d, want 6", len(got))
	}
	if got[0].Date != base.AddDays(3) || got[0].Provider != "a" || got[1].Provider != "b" {
		t.Fatalf("ordering wrong: %+v %+v", got[0], got[1])
	}
	if got[5].Date != base.AddDays(1) {
		t.Fatalf("range wrong, last row %v", got[5].Date)
	}

	got, err = db.QueryAggregates(ctx, models.AggregateQuery{TestType: models.TestAdvanced, Provider: "b", Method: "block"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("provider filter rows = %d, want 5", len(got))
	}
}

func TestPurgeAndUnaggregatedKeys(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d1 := civil.Date{Year: 2024, Month: 5, Day: 1}
	d2 := d1.AddDays(1)
	d3 := d1.AddDays(2)

	for _, d := range []civil.Date{d1, d2, d3} {
		r := models.SimpleResult{Provider: "a", Endpoint: "https://a", Method: "getSlot", Timestamp: at(d, 23), Success: true, LatencyMS: null.FloatFrom(1)}
		if err := db.RecordSimple(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpsertAggregate(ctx, models.AggregatedMetric{Provider: "a", TestType: models.TestSimple, Method: "getSlot", Date: d1, TotalPings: 1}); err != nil {
		t.Fatal(err)
	}

	keys, err := db.UnaggregatedKeys(ctx, models.TestSimple, d3)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].Date != d2 || keys[0].Provider != "a" || keys[0].TestType != models.TestSimple {
		t.Fatalf("unexpected keys %+v", keys)
	}

	n, err := db.PurgeRawBefore(ctx, models.TestSimple, d2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d raw rows, want 1", n)
	}

	n, err = db.PurgeAggregatesBefore(ctx, d2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d aggregate rows, want 1", n)
	}

	if _, err := db.PurgeRawBefore(ctx, models.TestType("bogus"), d2); err == nil {
		t.Fatal("expected error for unknown tier")
	}
	if err := db.Vacuum(ctx); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
}

func TestWriteRetriesBusy(t *testing.T) {
	busy := errors.New("locked")
	orig := isRetryable
	isRetryable = func(err error) bool { return errors.Is(err, busy) }
	t.Cleanup(func() { isRetryable = orig })

	db := &DB{attempts: 3, backoff: time.Millisecond}

	calls := 0
	err := db.write(context.Background(), func() error {
		calls++
		if calls < 3 {
			return busy
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = db.write(context.Background(), func() error {
		calls++
		return busy
	})
	if !errors.Is(err, ErrWriteBusy) || calls != 3 {
		t.Fatalf("expected ErrWriteBusy after 3 calls, got err=%v calls=%d", err, calls)
	}

	other := errors.New("constraint")
	calls = 0
	err = db.write(context.Background(), func() error {
		calls++
		return other
	})
	if !errors.Is(err, other) || calls != 1 {
		t.Fatalf("non-busy errors must not be retried, got err=%v calls=%d", err, calls)
	}
}
