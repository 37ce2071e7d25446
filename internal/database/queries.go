package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"edgeprobe/internal/models"
)

func rawTable(t models.TestType) (string, error) {
	switch t {
	case models.TestSimple:
		return "simple_latency", nil
	case models.TestAdvanced:
		return "advanced_latency", nil
	}
	return "", fmt.Errorf("unknown test type %q", t)
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// RecordSimple saves a simple-test result to the database
func (db *DB) RecordSimple(ctx context.Context, r models.SimpleResult) error {
	query := `
        INSERT INTO simple_latency (provider_name, endpoint, method, latency_ms, success, error, ts)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	err := db.write(ctx, func() error {
		_, err := db.ExecContext(ctx, query, r.Provider, r.Endpoint, r.Method, r.LatencyMS, r.Success, r.Error, millis(r.Timestamp))
		return err
	})
	if err != nil {
		db.metrics.Dropped(string(models.TestSimple))
	}
	return err
}

// RecordAdvanced saves an advanced sub-test result to the database
func (db *DB) RecordAdvanced(ctx context.Context, r models.AdvancedResult) error {
	query := `
        INSERT INTO advanced_latency (provider_name, endpoint, method, rpc_method, complexity, latency_ms, success, error, ts)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	err := db.write(ctx, func() error {
		_, err := db.ExecContext(ctx, query, r.Provider, r.Endpoint, r.Method, r.RPCMethod, r.Complexity, r.LatencyMS, r.Success, r.Error, millis(r.Timestamp))
		return err
	})
	if err != nil {
		db.metrics.Dropped(string(models.TestAdvanced))
	}
	return err
}

func rawFilter(q models.RawQuery) (string, []any) {
	var where []string
	var args []any
	if !q.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, millis(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, millis(q.To))
	}
	if q.Provider != "" {
		where = append(where, "provider_name = ?")
		args = append(args, q.Provider)
	}
	if q.Method != "" {
		where = append(where, "method = ?")
		args = append(args, q.Method)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// QuerySimple returns raw simple results in timestamp order
func (db *DB) QuerySimple(ctx context.Context, q models.RawQuery) ([]models.SimpleResult, error) {
	where, args := rawFilter(q)
	query := `
        SELECT provider_name, endpoint, method, latency_ms, success, error, ts
        FROM simple_latency` + where + `
        ORDER BY ts, id
    `
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.SimpleResult
	for rows.Next() {
		var r models.SimpleResult
		var ts int64
		if err := rows.Scan(&r.Provider, &r.Endpoint, &r.Method, &r.LatencyMS, &r.Success, &r.Error, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = fromMillis(ts)
		results = append(results, r)
	}
	return results, rows.Err()
}

// QueryAdvanced returns raw advanced results in timestamp order
func (db *DB) QueryAdvanced(ctx context.Context, q models.RawQuery) ([]models.AdvancedResult, error) {
	where, args := rawFilter(q)
	query := `
        SELECT provider_name, endpoint, method, rpc_method, complexity, latency_ms, success, error, ts
        FROM advanced_latency` + where + `
        ORDER BY ts, id
    `
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.AdvancedResult
	for rows.Next() {
		var r models.AdvancedResult
		var ts int64
		if err := rows.Scan(&r.Provider, &r.Endpoint, &r.Method, &r.RPCMethod, &r.Complexity, &r.LatencyMS, &r.Success, &r.Error, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = fromMillis(ts)
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpsertAggregate inserts or replaces the row for m.Key()
func (db *DB) UpsertAggregate(ctx context.Context, m models.AggregatedMetric) error {
	query := `
        INSERT INTO daily_latency_aggregation
            (provider_name, endpoint, test_type, method, date, p50_latency, p90_latency, total_pings, success_rate)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (provider_name, test_type, method, date) DO UPDATE SET
            endpoint = excluded.endpoint,
            p50_latency = excluded.p50_latency,
            p90_latency = excluded.p90_latency,
            total_pings = excluded.total_pings,
            success_rate = excluded.success_rate
    `
	return db.write(ctx, func() error {
		_, err := db.ExecContext(ctx, query,
			m.Provider, m.Endpoint, string(m.TestType), m.Method, m.Date.String(),
			m.P50Latency, m.P90Latency, m.TotalPings, m.SuccessRate)
		return err
	})
}

// QueryAggregates returns daily rows newest first
func (db *DB) QueryAggregates(ctx context.Context, q models.AggregateQuery) ([]models.AggregatedMetric, error) {
	query := `
        SELECT provider_name, endpoint, test_type, method, date, p50_latency, p90_latency, total_pings, success_rate
        FROM daily_latency_aggregation
        WHERE test_type = ?
    `
	args := []any{string(q.TestType)}
	if q.From.IsValid() {
		query += " AND date >= ?"
		args = append(args, q.From.String())
	}
	if q.To.IsValid() {
		query += " AND date < ?"
		args = append(args, q.To.String())
	}
	if q.Provider != "" {
		query += " AND provider_name = ?"
		args = append(args, q.Provider)
	}
	if q.Method != "" {
		query += " AND method = ?"
		args = append(args, q.Method)
	}
	query += " ORDER BY date DESC, provider_name, method"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AggregatedMetric
	for rows.Next() {
		var m models.AggregatedMetric
		var testType, date string
		if err := rows.Scan(&m.Provider, &m.Endpoint, &testType, &m.Method, &date,
			&m.P50Latency, &m.P90Latency, &m.TotalPings, &m.SuccessRate); err != nil {
			return nil, err
		}
		m.TestType = models.TestType(testType)
		if m.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("bad date %q in aggregation table: %w", date, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanKeys reads provider/method/day triples.
func scanKeys(rows *sql.Rows, t models.TestType) ([]models.AggregateKey, error) {
	defer rows.Close()
	var keys []models.AggregateKey
	for rows.Next() {
		var k models.AggregateKey
		var day string
		if err := rows.Scan(&k.Provider, &k.Method, &day); err != nil {
			return nil, err
		}
		d, err := civil.ParseDate(day)
		if err != nil {
			return nil, err
		}
		k.TestType = t
		k.Date = d
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
