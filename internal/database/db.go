package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"edgeprobe/internal/metrics"
)

// ErrWriteBusy is returned when a write still finds the database locked
// after every retry.
var ErrWriteBusy = errors.New("database busy")

const busyTimeoutMS = 5000

// DB wraps sql.DB with additional methods
type DB struct {
	*sql.DB

	writeMu  sync.Mutex
	metrics  *metrics.Metrics
	attempts int
	backoff  time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithMetrics counts retried and dropped writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(db *DB) { db.metrics = m }
}

// WithRetry sets how many times a busy write is attempted and the initial
// backoff, which doubles after each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(db *DB) {
		if attempts > 0 {
			db.attempts = attempts
		}
		if backoff > 0 {
			db.backoff = backoff
		}
	}
}

// New creates a new database connection
func New(path string, opts ...Option) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path, busyTimeoutMS)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("database open failed: %w", err)
	}

	db := &DB{DB: sqlDB, attempts: 5, backoff: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// InitSchema creates all necessary tables
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS simple_latency (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        provider_name TEXT NOT NULL,
        endpoint TEXT NOT NULL,
        method TEXT NOT NULL,
        latency_ms REAL,
        success INTEGER NOT NULL,
        error TEXT,
        ts INTEGER NOT NULL -- unix milliseconds, UTC
    );

    CREATE INDEX IF NOT EXISTS idx_simple_ts ON simple_latency(ts);
    CREATE INDEX IF NOT EXISTS idx_simple_key_ts ON simple_latency(provider_name, method, ts);

    CREATE TABLE IF NOT EXISTS advanced_latency (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        provider_name TEXT NOT NULL,
        endpoint TEXT NOT NULL,
        method TEXT NOT NULL,
        rpc_method TEXT NOT NULL DEFAULT '',
        complexity TEXT NOT NULL DEFAULT '',
        latency_ms REAL,
        success INTEGER NOT NULL,
        error TEXT,
        ts INTEGER NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_advanced_ts ON advanced_latency(ts);
    CREATE INDEX IF NOT EXISTS idx_advanced_key_ts ON advanced_latency(provider_name, method, ts);

    CREATE TABLE IF NOT EXISTS daily_latency_aggregation (
        provider_name TEXT NOT NULL,
        endpoint TEXT NOT NULL,
        test_type TEXT NOT NULL,
        method TEXT NOT NULL,
        date TEXT NOT NULL, -- YYYY-MM-DD, UTC
        p50_latency REAL,
        p90_latency REAL,
        total_pings INTEGER NOT NULL,
        success_rate REAL NOT NULL,
        PRIMARY KEY (provider_name, test_type, method, date)
    );

    CREATE INDEX IF NOT EXISTS idx_aggregation_type_date ON daily_latency_aggregation(test_type, date);
    `

	err := db.write(ctx, func() error {
		_, err := db.ExecContext(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// Vacuum compacts the database file.
func (db *DB) Vacuum(ctx context.Context) error {
	return db.write(ctx, func() error {
		_, err := db.ExecContext(ctx, "VACUUM")
		return err
	})
}

// isRetryable reports whether err means another writer holds the lock.
var isRetryable = func(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// write serializes writers and retries fn with exponential backoff while
// the database reports it is busy.
func (db *DB) write(ctx context.Context, fn func() error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	wait := db.backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt >= db.attempts {
			break
		}
		db.metrics.WriteRetry()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrWriteBusy, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrWriteBusy, db.attempts, err)
}
