package retention

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"edgeprobe/internal/metrics"
	"edgeprobe/internal/models"
)

// Policy holds the three retention horizons in days.
type Policy struct {
	SimpleRawDays   int
	AdvancedRawDays int
	AggregationDays int
}

func (p Policy) rawDays(t models.TestType) int {
	if t == models.TestAdvanced {
		return p.AdvancedRawDays
	}
	return p.SimpleRawDays
}

// Result counts the rows removed by one purge.
type Result struct {
	Simple     int64
	Advanced   int64
	Aggregates int64
}

// Store is what retention needs from storage.
type Store interface {
	PurgeRawBefore(ctx context.Context, t models.TestType, cutoff civil.Date) (int64, error)
	UnaggregatedKeys(ctx context.Context, t models.TestType, before civil.Date) ([]models.AggregateKey, error)
	PurgeAggregatesBefore(ctx context.Context, cutoff civil.Date) (int64, error)
}

// Manager purges aged rows
type Manager struct {
	store   Store
	policy  Policy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a new retention manager
func New(store Store, policy Policy, logger *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{store: store, policy: policy, logger: logger, metrics: m}
}

// Purge removes raw and aggregated rows past their horizons. Raw rows of a
// day that has not been aggregated yet are kept regardless of age.
func (m *Manager) Purge(ctx context.Context, now time.Time) (Result, error) {
	today := models.Today(now)
	var res Result
	var errs error

	for _, t := range models.TestTypes {
		cutoff, err := m.rawCutoff(ctx, t, today)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		n, err := m.store.PurgeRawBefore(ctx, t, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purging %s raw rows: %w", t, err))
			continue
		}
		table := string(t) + "_latency"
		m.metrics.Purged(table, n)
		if t == models.TestSimple {
			res.Simple = n
		} else {
			res.Advanced = n
		}
	}

	aggCutoff := today.AddDays(-m.policy.AggregationDays)
	n, err := m.store.PurgeAggregatesBefore(ctx, aggCutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purging aggregates: %w", err))
	} else {
		res.Aggregates = n
		m.metrics.Purged("daily_latency_aggregation", n)
	}

	m.logger.Info("retention purge complete",
		zap.Int64("simple", res.Simple),
		zap.Int64("advanced", res.Advanced),
		zap.Int64("aggregates", res.Aggregates))
	return res, errs
}

// rawCutoff is today minus the horizon, pulled back to the oldest day that
// still lacks a daily row.
func (m *Manager) rawCutoff(ctx context.Context, t models.TestType, today civil.Date) (civil.Date, error) {
	cutoff := today.AddDays(-m.policy.rawDays(t))

	pending, err := m.store.UnaggregatedKeys(ctx, t, cutoff)
	if err != nil {
		return civil.Date{}, fmt.Errorf("checking unaggregated %s days: %w", t, err)
	}
	for _, k := range pending {
		if k.Date.Before(cutoff) {
			cutoff = k.Date
		}
	}
	if len(pending) > 0 {
		m.logger.Warn("keeping raw rows of unaggregated days",
			zap.String("test_type", string(t)),
			zap.Stringer("oldest", cutoff),
			zap.Int("keys", len(pending)))
	}
	return cutoff, nil
}
