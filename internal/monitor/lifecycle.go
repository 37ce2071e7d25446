package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"edgeprobe/internal/models"
)

// maintenanceWorker runs periodic maintenance tasks
func (m *Monitor) maintenanceWorker(ctx context.Context) {
	defer m.loops.Done()

	m.tracker.SetRunning(models.LoopMaintenance, true)
	defer m.tracker.SetRunning(models.LoopMaintenance, false)

	ticker := time.NewTicker(m.maintenance)
	defer ticker.Stop()

	// Run immediately on start
	m.runMaintenance(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runMaintenance(ctx)
		}
	}
}

func (m *Monitor) runMaintenance(ctx context.Context) {
	m.safely(models.LoopMaintenance, "", func() {
		_ = m.performMaintenance(ctx)
	})
}

// performMaintenance aggregates pending days, then purges, then compacts the
// database once a month. The heartbeat is only recorded for a clean cycle.
func (m *Monitor) performMaintenance(ctx context.Context) error {
	m.logger.Info("running maintenance tasks")
	now := m.now()

	written, errs := m.aggregator.RunPending(ctx, m.combos, now)

	if _, err := m.retention.Purge(ctx, now); err != nil {
		errs = multierr.Append(errs, err)
	}

	today := models.Today(now)
	if today.Day == 1 && today != m.lastVacuumed {
		if err := m.store.Vacuum(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vacuum: %w", err))
		} else {
			m.lastVacuumed = today
		}
	}

	m.metrics.MaintenanceRun(errs)
	if errs != nil {
		m.logger.Error("maintenance finished with errors", zap.Int("aggregated", written), zap.Error(errs))
		return errs
	}
	m.tracker.Heartbeat(models.LoopMaintenance)
	m.logger.Info("maintenance complete", zap.Int("aggregated", written))
	return nil
}
