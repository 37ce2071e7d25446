package monitor

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"edgeprobe/internal/aggregate"
	"edgeprobe/internal/config"
	"edgeprobe/internal/health"
	"edgeprobe/internal/metrics"
	"edgeprobe/internal/models"
	"edgeprobe/internal/retention"
)

// Deps are the collaborators a Monitor drives.
type Deps struct {
	Store   models.Store
	Prober  models.Prober
	Tracker *health.Tracker
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Monitor coordinates the simple, advanced and maintenance loops
type Monitor struct {
	cfg     *config.Config
	store   models.Store
	prober  models.Prober
	tracker *health.Tracker
	metrics *metrics.Metrics
	logger  *zap.Logger

	aggregator *aggregate.Aggregator
	retention  *retention.Manager
	combos     []aggregate.Combo

	limit        int64
	tick         time.Duration
	maintenance  time.Duration
	now          func() time.Time
	lastVacuumed civil.Date

	loops  sync.WaitGroup
	probes sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a new Monitor
func New(cfg *config.Config, d Deps) *Monitor {
	g := cfg.Global
	m := &Monitor{
		cfg:         cfg,
		store:       d.Store,
		prober:      d.Prober,
		tracker:     d.Tracker,
		metrics:     d.Metrics,
		logger:      d.Logger,
		aggregator:  aggregate.New(d.Store, d.Logger),
		combos:      Combos(cfg),
		tick:        g.SchedulerTick(),
		maintenance: g.MaintenanceEvery(),
		now:         time.Now,
	}
	m.retention = retention.New(d.Store, retention.Policy{
		SimpleRawDays:   g.SimpleRetentionDays,
		AdvancedRawDays: g.AdvancedRetentionDays,
		AggregationDays: g.AggregationRetentionDays,
	}, d.Logger, d.Metrics)
	if g.MaxConcurrentProbes > 0 {
		m.limit = int64(g.MaxConcurrentProbes)
	}
	return m
}

// loopLimiter bounds in-flight probes within one loop. Each loop owns its own.
func (m *Monitor) loopLimiter() *semaphore.Weighted {
	if m.limit <= 0 {
		return nil
	}
	return semaphore.NewWeighted(m.limit)
}

// Combos lists every provider/tier/method the configuration probes.
func Combos(cfg *config.Config) []aggregate.Combo {
	var out []aggregate.Combo
	for _, p := range cfg.Providers {
		out = append(out, aggregate.Combo{Provider: p.Name, TestType: models.TestSimple, Method: p.Methods.Simple.Method})
		for _, st := range p.EnabledSubTests() {
			out = append(out, aggregate.Combo{Provider: p.Name, TestType: models.TestAdvanced, Method: st.Name})
		}
	}
	return out
}

// Start begins the monitoring process
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	simple := m.simpleJobs()
	advanced := m.advancedJobs()
	m.logger.Info("starting monitor",
		zap.Int("providers", len(m.cfg.Providers)),
		zap.Int("advanced_providers", len(advanced)))

	m.tracker.Register(models.LoopSimple, minInterval(simple))
	m.tracker.Register(models.LoopMaintenance, m.maintenance)

	m.loops.Add(1)
	go m.scheduleLoop(ctx, models.LoopSimple, simple, m.runSimple)

	if len(advanced) == 0 {
		m.tracker.SetDisabled(models.LoopAdvanced, true)
		m.logger.Info("advanced loop disabled, no provider has enabled sub-tests")
	} else {
		m.tracker.Register(models.LoopAdvanced, minInterval(advanced))
		m.loops.Add(1)
		go m.scheduleLoop(ctx, models.LoopAdvanced, advanced, m.runAdvanced)
	}

	m.loops.Add(1)
	go m.maintenanceWorker(ctx)
}

// Stop signals every loop to exit at its next wake point
func (m *Monitor) Stop() {
	m.logger.Info("stopping monitor")
	if m.cancel != nil {
		m.cancel()
	}
}

// Wait blocks until every loop has exited and in-flight probes have finished
func (m *Monitor) Wait() {
	m.loops.Wait()
	m.probes.Wait()
	m.logger.Info("monitor stopped")
}

// Run starts the monitor and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Start(ctx)
	<-ctx.Done()
	m.Stop()
	m.Wait()
	return nil
}

func (m *Monitor) simpleJobs() []*job {
	jobs := make([]*job, 0, len(m.cfg.Providers))
	for _, p := range m.cfg.Providers {
		m.tracker.RegisterProvider(p.Name, models.TestSimple, p.SimpleInterval())
		jobs = append(jobs, &job{provider: p, interval: p.SimpleInterval()})
	}
	return jobs
}

func (m *Monitor) advancedJobs() []*job {
	var jobs []*job
	for _, p := range m.cfg.Providers {
		if !p.AdvancedEnabled() {
			continue
		}
		m.tracker.RegisterProvider(p.Name, models.TestAdvanced, p.AdvancedInterval())
		jobs = append(jobs, &job{provider: p, interval: p.AdvancedInterval()})
	}
	return jobs
}

// minInterval is the cadence the loop as a whole is expected to beat at.
func minInterval(jobs []*job) time.Duration {
	var shortest time.Duration
	for _, j := range jobs {
		if shortest == 0 || j.interval < shortest {
			shortest = j.interval
		}
	}
	return shortest
}
