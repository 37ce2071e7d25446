package models

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// RawStore is the append-only store of individual probe results.
type RawStore interface {
	RecordSimple(ctx context.Context, r SimpleResult) error
	RecordAdvanced(ctx context.Context, r AdvancedResult) error
	QuerySimple(ctx context.Context, q RawQuery) ([]SimpleResult, error)
	QueryAdvanced(ctx context.Context, q RawQuery) ([]AdvancedResult, error)
	// PurgeRawBefore deletes rows of the given tier dated before cutoff.
	PurgeRawBefore(ctx context.Context, t TestType, cutoff civil.Date) (int64, error)
	// UnaggregatedKeys lists provider/method/day triples that have raw rows
	// dated before the given day but no aggregated row yet.
	UnaggregatedKeys(ctx context.Context, t TestType, before civil.Date) ([]AggregateKey, error)
}

// AggregateStore holds daily summaries.
type AggregateStore interface {
	UpsertAggregate(ctx context.Context, m AggregatedMetric) error
	QueryAggregates(ctx context.Context, q AggregateQuery) ([]AggregatedMetric, error)
	PurgeAggregatesBefore(ctx context.Context, cutoff civil.Date) (int64, error)
}

// Store is the full storage surface shared by every component.
type Store interface {
	RawStore
	AggregateStore
	Vacuum(ctx context.Context) error
	Close() error
}

// Call describes one JSON-RPC invocation.
type Call struct {
	Method  string
	Params  []any
	Timeout time.Duration
}

// Outcome is the classified result of one call.
type Outcome struct {
	Timestamp time.Time
	LatencyMS float64
	Success   bool
	Error     string
}

// Prober executes a single timed RPC call. It never returns an error:
// every failure is reported inside the Outcome.
type Prober interface {
	Probe(ctx context.Context, endpoint string, call Call) Outcome
}
