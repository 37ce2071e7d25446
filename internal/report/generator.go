package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"edgeprobe/internal/models"
)

// Generator renders charts and a text summary from the daily aggregates
type Generator struct {
	store  models.AggregateStore
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerator creates a new report generator
func NewGenerator(store models.AggregateStore, logger *zap.Logger) *Generator {
	return &Generator{store: store, logger: logger, now: time.Now}
}

// GenerateReport writes a timestamped report directory under outputDir
// covering the last `days` elapsed days and returns its path.
func (g *Generator) GenerateReport(ctx context.Context, outputDir string, days int) (string, error) {
	now := g.now()
	reportDir := filepath.Join(outputDir, fmt.Sprintf("latency_report_%s", now.UTC().Format("2006-01-02_15-04-05")))
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	today := models.Today(now)
	var all []*series
	for _, tt := range models.TestTypes {
		rows, err := g.store.QueryAggregates(ctx, models.AggregateQuery{
			TestType: tt,
			From:     today.AddDays(-days),
			To:       today,
		})
		if err != nil {
			return "", fmt.Errorf("loading %s aggregates: %w", tt, err)
		}
		all = append(all, groupSeries(rows)...)
	}

	var errs error
	for _, s := range all {
		err := g.generateLatencyChart(reportDir, s)
		if errors.Is(err, errTooFewPoints) {
			g.logger.Debug("skipping latency chart", zap.String("series", s.label()), zap.Error(err))
			continue
		}
		if err != nil {
			g.logger.Warn("failed to generate latency chart", zap.String("series", s.label()), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	for _, tt := range models.TestTypes {
		if err := g.generateSuccessRateChart(reportDir, tt, all); err != nil {
			g.logger.Warn("failed to generate success rate chart", zap.String("test_type", string(tt)), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	if err := g.generateTextReport(reportDir, days, now, all); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("text report: %w", err))
	}

	g.logger.Info("report generated", zap.String("dir", reportDir), zap.Int("series", len(all)))
	return reportDir, errs
}
