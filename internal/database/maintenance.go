package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"edgeprobe/internal/models"
)

// PurgeRawBefore deletes raw rows of one tier timestamped before the start of cutoff
func (db *DB) PurgeRawBefore(ctx context.Context, t models.TestType, cutoff civil.Date) (int64, error) {
	table, err := rawTable(t)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.write(ctx, func() error {
		res, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE ts < ?", table), millis(models.DayStart(cutoff)))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// PurgeAggregatesBefore deletes daily rows dated before cutoff
func (db *DB) PurgeAggregatesBefore(ctx context.Context, cutoff civil.Date) (int64, error) {
	var n int64
	err := db.write(ctx, func() error {
		res, err := db.ExecContext(ctx, "DELETE FROM daily_latency_aggregation WHERE date < ?", cutoff.String())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// UnaggregatedKeys lists the days before `before` that have raw rows but no
// daily row, oldest first
func (db *DB) UnaggregatedKeys(ctx context.Context, t models.TestType, before civil.Date) ([]models.AggregateKey, error) {
	table, err := rawTable(t)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT DISTINCT r.provider_name, r.method, date(r.ts / 1000, 'unixepoch') AS day
        FROM %s r
        WHERE r.ts < ?
        AND NOT EXISTS (
            SELECT 1 FROM daily_latency_aggregation a
            WHERE a.provider_name = r.provider_name
            AND a.test_type = ?
            AND a.method = r.method
            AND a.date = date(r.ts / 1000, 'unixepoch')
        )
        ORDER BY day, r.provider_name, r.method
    `, table)

	rows, err := db.QueryContext(ctx, query, millis(models.DayStart(before)), string(t))
	if err != nil {
		return nil, err
	}
	return scanKeys(rows, t)
}
