package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"edgeprobe/internal/models"
)

// Store is the storage the aggregator reads from and writes to.
type Store interface {
	models.RawStore
	models.AggregateStore
}

// Combo is one configured provider/tier/method.
type Combo struct {
	Provider string
	TestType models.TestType
	Method   string
}

// Summary is the reduction of one day of raw samples.
type Summary struct {
	Endpoint    string
	P50         null.Float
	P90         null.Float
	Total       int
	SuccessRate float64
}

// NearestRank returns the value at rank ceil(p/100 * n), clamped to [1, n].
// sorted must be ascending and non-empty.
func NearestRank(sorted []float64, p int) float64 {
	n := len(sorted)
	rank := (p*n + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// Summarize reduces samples. It reports false for an empty set.
func Summarize(samples []models.Sample) (Summary, bool) {
	if len(samples) == 0 {
		return Summary{}, false
	}
	var latencies []float64
	successes := 0
	for _, s := range samples {
		if !s.Success {
			continue
		}
		successes++
		if s.LatencyMS.Valid {
			latencies = append(latencies, s.LatencyMS.Float64)
		}
	}

	out := Summary{
		Endpoint:    samples[len(samples)-1].Endpoint,
		Total:       len(samples),
		SuccessRate: float64(successes) / float64(len(samples)),
	}
	if len(latencies) > 0 {
		sort.Float64s(latencies)
		out.P50 = null.FloatFrom(NearestRank(latencies, 50))
		out.P90 = null.FloatFrom(NearestRank(latencies, 90))
	}
	return out, true
}

// Aggregator rolls raw rows into daily summaries
type Aggregator struct {
	store  Store
	logger *zap.Logger
}

// New creates a new aggregator
func New(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Aggregate recomputes the daily row for key. It reports whether a row was
// written; a key with no raw rows produces none.
func (a *Aggregator) Aggregate(ctx context.Context, key models.AggregateKey) (bool, error) {
	q := models.RawQuery{
		Provider: key.Provider,
		Method:   key.Method,
		From:     models.DayStart(key.Date),
		To:       models.DayStart(key.Date.AddDays(1)),
	}

	var samples []models.Sample
	switch key.TestType {
	case models.TestSimple:
		rows, err := a.store.QuerySimple(ctx, q)
		if err != nil {
			return false, err
		}
		for _, r := range rows {
			samples = append(samples, r.Sample())
		}
	case models.TestAdvanced:
		rows, err := a.store.QueryAdvanced(ctx, q)
		if err != nil {
			return false, err
		}
		for _, r := range rows {
			samples = append(samples, r.Sample())
		}
	default:
		return false, fmt.Errorf("unknown test type %q", key.TestType)
	}

	s, ok := Summarize(samples)
	if !ok {
		return false, nil
	}
	err := a.store.UpsertAggregate(ctx, models.AggregatedMetric{
		Provider:    key.Provider,
		Endpoint:    s.Endpoint,
		TestType:    key.TestType,
		Method:      key.Method,
		Date:        key.Date,
		P50Latency:  s.P50,
		P90Latency:  s.P90,
		TotalPings:  s.Total,
		SuccessRate: s.SuccessRate,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Pending lists the keys due for aggregation on day today: every combo for
// yesterday, plus any earlier day that has raw rows but no daily row.
func (a *Aggregator) Pending(ctx context.Context, combos []Combo, today civil.Date) ([]models.AggregateKey, error) {
	yesterday := today.AddDays(-1)
	seen := make(map[models.AggregateKey]bool)
	var keys []models.AggregateKey
	add := func(k models.AggregateKey) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	var errs error
	for _, t := range models.TestTypes {
		missing, err := a.store.UnaggregatedKeys(ctx, t, today)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("listing unaggregated %s days: %w", t, err))
			continue
		}
		for _, k := range missing {
			add(k)
		}
	}
	for _, c := range combos {
		add(models.AggregateKey{Provider: c.Provider, TestType: c.TestType, Method: c.Method, Date: yesterday})
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].Date.Before(keys[j].Date)
	})
	return keys, errs
}

// RunPending aggregates every pending key. A failing key is logged and
// skipped; the rest still run. It returns the number of rows written.
func (a *Aggregator) RunPending(ctx context.Context, combos []Combo, now time.Time) (int, error) {
	keys, errs := a.Pending(ctx, combos, models.Today(now))

	written := 0
	for _, k := range keys {
		if ctx.Err() != nil {
			return written, multierr.Append(errs, ctx.Err())
		}
		ok, err := a.Aggregate(ctx, k)
		if err != nil {
			a.logger.Warn("aggregation failed",
				zap.String("provider", k.Provider),
				zap.String("test_type", string(k.TestType)),
				zap.String("method", k.Method),
				zap.Stringer("date", k.Date),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("aggregating %s/%s/%s %s: %w", k.Provider, k.TestType, k.Method, k.Date, err))
			continue
		}
		if ok {
			written++
		}
	}
	return written, errs
}
