package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"edgeprobe/internal/config"
	"edgeprobe/internal/models"
)

// job is one provider's slot in a loop's schedule. Only the loop goroutine
// touches next and inFlight.
type job struct {
	provider config.Provider
	interval time.Duration
	next     time.Time
	inFlight bool
}

type completion struct {
	job       *job
	scheduled time.Time
	finished  time.Time
}

// runFunc performs one cycle for a provider. ctx is cancelled on shutdown;
// a call already started finishes on a detached context.
type runFunc func(ctx context.Context, p config.Provider)

// scheduleLoop fires each job when its own next-due time passes, so a slow
// provider only delays itself.
func (m *Monitor) scheduleLoop(ctx context.Context, loop string, jobs []*job, run runFunc) {
	defer m.loops.Done()

	m.tracker.SetRunning(loop, true)
	defer m.tracker.SetRunning(loop, false)

	start := m.now()
	for _, j := range jobs {
		j.next = start
	}

	// each job has at most one completion outstanding
	done := make(chan completion, len(jobs))
	sem := m.loopLimiter()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	// Immediate first round
	m.dispatch(ctx, loop, jobs, sem, done, run)

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-done:
			c.job.inFlight = false
			next := c.scheduled.Add(c.job.interval)
			if c.finished.After(next) {
				next = c.finished
			}
			c.job.next = next
			m.dispatch(ctx, loop, jobs, sem, done, run)
		case <-ticker.C:
			m.dispatch(ctx, loop, jobs, sem, done, run)
		}
	}
}

func (m *Monitor) dispatch(ctx context.Context, loop string, jobs []*job, sem *semaphore.Weighted, done chan<- completion, run runFunc) {
	now := m.now()
	for _, j := range jobs {
		if j.inFlight || now.Before(j.next) {
			continue
		}
		j.inFlight = true
		scheduled := j.next

		m.probes.Add(1)
		go func(j *job) {
			defer m.probes.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					done <- completion{job: j, scheduled: scheduled, finished: m.now()}
					return
				}
				defer sem.Release(1)
			}
			m.safely(loop, j.provider.Name, func() {
				run(ctx, j.provider)
			})
			done <- completion{job: j, scheduled: scheduled, finished: m.now()}
		}(j)
	}
}

// safely runs fn, turning a panic into a log line so the loop survives.
func (m *Monitor) safely(loop, provider string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("probe cycle panicked",
				zap.String("loop", loop),
				zap.String("provider", provider),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func errorText(out models.Outcome) null.String {
	if out.Success {
		return null.String{}
	}
	return null.StringFrom(out.Error)
}

func latency(out models.Outcome) null.Float {
	if !out.Success {
		return null.Float{}
	}
	return null.FloatFrom(out.LatencyMS)
}

// runSimple performs one simple test and records it
func (m *Monitor) runSimple(ctx context.Context, p config.Provider) {
	if ctx.Err() != nil {
		return
	}
	// once started, the call and its record outlive shutdown
	ctx = context.WithoutCancel(ctx)

	st := p.Methods.Simple
	out := m.prober.Probe(ctx, p.URL, models.Call{Method: st.Method, Params: st.Params, Timeout: p.SimpleTimeout()})
	m.metrics.ObserveProbe(p.Name, string(models.TestSimple), st.Method, out.Success, out.LatencyMS)

	r := models.SimpleResult{
		Provider:  p.Name,
		Endpoint:  p.URL,
		Method:    st.Method,
		Timestamp: out.Timestamp,
		LatencyMS: latency(out),
		Success:   out.Success,
		Error:     errorText(out),
	}
	if err := m.store.RecordSimple(ctx, r); err != nil {
		m.logger.Error("failed to record simple result", zap.String("provider", p.Name), zap.Error(err))
		return
	}
	if !out.Success {
		m.logger.Debug("simple probe failed", zap.String("provider", p.Name), zap.String("error", out.Error))
	}
	m.tracker.ProviderHeartbeat(p.Name, models.TestSimple)
}

// runAdvanced performs every enabled sub-test in order and records each.
// No further sub-test starts once ctx is cancelled.
func (m *Monitor) runAdvanced(ctx context.Context, p config.Provider) {
	detached := context.WithoutCancel(ctx)
	var failed error
	for _, st := range p.EnabledSubTests() {
		if ctx.Err() != nil {
			failed = fmt.Errorf("stopped before %s: %w", st.Name, ctx.Err())
			m.logger.Info("advanced cycle interrupted by shutdown",
				zap.String("provider", p.Name), zap.String("method", st.Name))
			break
		}
		out := m.prober.Probe(detached, p.URL, models.Call{Method: st.Method, Params: st.Params, Timeout: p.AdvancedTimeout()})
		m.metrics.ObserveProbe(p.Name, string(models.TestAdvanced), st.Name, out.Success, out.LatencyMS)

		r := models.AdvancedResult{
			Provider:   p.Name,
			Endpoint:   p.URL,
			Method:     st.Name,
			RPCMethod:  st.Method,
			Complexity: st.Complexity,
			Timestamp:  out.Timestamp,
			LatencyMS:  latency(out),
			Success:    out.Success,
			Error:      errorText(out),
		}
		if err := m.store.RecordAdvanced(detached, r); err != nil {
			failed = fmt.Errorf("recording %s: %w", st.Name, err)
			m.logger.Error("failed to record advanced result",
				zap.String("provider", p.Name), zap.String("method", st.Name), zap.Error(err))
		}
	}
	if failed == nil {
		m.tracker.ProviderHeartbeat(p.Name, models.TestAdvanced)
	}
}
