package health

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/guregu/null/v5"

	"edgeprobe/internal/models"
)

// Thresholds are the slack multipliers applied to a loop's interval.
type Thresholds struct {
	OK      float64
	Warning float64
}

// Classify maps the age of a loop's last heartbeat to a status.
func Classify(age, interval time.Duration, th Thresholds, running bool) models.HealthStatus {
	if !running {
		return models.StatusCritical
	}
	switch {
	case float64(age) <= th.OK*float64(interval):
		return models.StatusOK
	case float64(age) <= th.Warning*float64(interval):
		return models.StatusWarning
	default:
		return models.StatusCritical
	}
}

type providerKey struct {
	provider string
	testType models.TestType
}

type providerHealth struct {
	interval time.Duration
	lastRun  time.Time
}

// Tracker records loop and provider heartbeats. It is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	now       func() time.Time
	started   time.Time
	th        Thresholds
	loops     map[string]*models.LoopHealth
	providers map[providerKey]*providerHealth
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker with the three scheduler loops registered
// as stopped.
func NewTracker(th Thresholds, opts ...Option) *Tracker {
	t := &Tracker{
		now:       time.Now,
		th:        th,
		loops:     make(map[string]*models.LoopHealth),
		providers: make(map[providerKey]*providerHealth),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.now()
	for _, name := range []string{models.LoopSimple, models.LoopAdvanced, models.LoopMaintenance} {
		t.loops[name] = &models.LoopHealth{Name: name}
	}
	return t
}

// Register sets the expected cadence of a loop.
func (t *Tracker) Register(loop string, interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop(loop).Interval = interval
}

// SetDisabled marks a loop that has nothing to schedule.
func (t *Tracker) SetDisabled(loop string, disabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop(loop).Disabled = disabled
}

// SetRunning records a loop starting or stopping.
func (t *Tracker) SetRunning(loop string, running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.loop(loop)
	l.Running = running
	if running {
		l.Started = t.now()
	}
}

// Heartbeat records a successful cycle of loop.
func (t *Tracker) Heartbeat(loop string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop(loop).LastRun = t.now()
}

// RegisterProvider sets the cadence of one provider's tier.
func (t *Tracker) RegisterProvider(provider string, tt models.TestType, interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := providerKey{provider, tt}
	if p, ok := t.providers[k]; ok {
		p.interval = interval
		return
	}
	t.providers[k] = &providerHealth{interval: interval}
}

// ProviderHeartbeat records a completed probe cycle for a provider and
// counts as a heartbeat of the owning loop.
func (t *Tracker) ProviderHeartbeat(provider string, tt models.TestType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	k := providerKey{provider, tt}
	p, ok := t.providers[k]
	if !ok {
		p = &providerHealth{}
		t.providers[k] = p
	}
	p.lastRun = now

	loop := models.LoopSimple
	if tt == models.TestAdvanced {
		loop = models.LoopAdvanced
	}
	t.loop(loop).LastRun = now
}

// loop must be called with mu held.
func (t *Tracker) loop(name string) *models.LoopHealth {
	l, ok := t.loops[name]
	if !ok {
		l = &models.LoopHealth{Name: name}
		t.loops[name] = l
	}
	return l
}

// LoopStatus is the reported state of one loop.
type LoopStatus struct {
	Status     models.HealthStatus `json:"status"`
	LastRun    string              `json:"last_run"`
	LastRunAge null.Float          `json:"last_run_age_seconds"`
	Interval   float64             `json:"interval_seconds"`
	Running    bool                `json:"running"`
}

// ThreadStatus summarises whether every enabled loop is alive.
type ThreadStatus struct {
	Status  models.HealthStatus `json:"status"`
	Details map[string]bool     `json:"details"`
}

type Components struct {
	Simple      LoopStatus   `json:"simple_monitor"`
	Advanced    LoopStatus   `json:"advanced_monitor"`
	Maintenance LoopStatus   `json:"maintenance"`
	Threads     ThreadStatus `json:"threads"`
}

// ProviderStatus is informational and does not affect the overall status.
type ProviderStatus struct {
	Provider string              `json:"provider_name"`
	TestType models.TestType     `json:"test_type"`
	Status   models.HealthStatus `json:"status"`
	LastRun  null.Time           `json:"last_run"`
}

// SystemStats is the host resource snapshot attached at the boundary.
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// Report is the status document.
type Report struct {
	Status     models.HealthStatus `json:"status"`
	Uptime     string              `json:"uptime"`
	Components Components          `json:"components"`
	Providers  []ProviderStatus    `json:"providers"`
	System     *SystemStats        `json:"system,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Report classifies every loop and returns the overall status as the worst
// of the enabled loops.
func (t *Tracker) Report() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()

	r := Report{
		Status:    models.StatusOK,
		Uptime:    FormatAge(now.Sub(t.started)),
		Providers: []ProviderStatus{},
		Timestamp: now.UTC(),
		Components: Components{
			Threads: ThreadStatus{Status: models.StatusOK, Details: make(map[string]bool)},
		},
	}

	for _, name := range []string{models.LoopSimple, models.LoopAdvanced, models.LoopMaintenance} {
		l := t.loops[name]
		s := t.loopStatus(l, now)
		switch name {
		case models.LoopSimple:
			r.Components.Simple = s
		case models.LoopAdvanced:
			r.Components.Advanced = s
		case models.LoopMaintenance:
			r.Components.Maintenance = s
		}
		if l.Disabled {
			continue
		}
		r.Components.Threads.Details[name] = l.Running
		if !l.Running {
			r.Components.Threads.Status = models.StatusCritical
		}
		r.Status = models.Worst(r.Status, s.Status)
	}

	for k, p := range t.providers {
		ps := ProviderStatus{Provider: k.provider, TestType: k.testType}
		ref := p.lastRun
		if ref.IsZero() {
			ref = t.started
		} else {
			ps.LastRun = null.TimeFrom(p.lastRun.UTC())
		}
		ps.Status = models.StatusOK
		if p.interval > 0 {
			ps.Status = Classify(now.Sub(ref), p.interval, t.th, true)
		}
		r.Providers = append(r.Providers, ps)
	}
	sort.Slice(r.Providers, func(i, j int) bool {
		a, b := r.Providers[i], r.Providers[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.TestType < b.TestType
	})
	return r
}

func (t *Tracker) loopStatus(l *models.LoopHealth, now time.Time) LoopStatus {
	s := LoopStatus{
		LastRun:  "Never",
		Interval: l.Interval.Seconds(),
		Running:  l.Running,
	}
	if l.Disabled {
		s.Status = models.StatusDisabled
		return s
	}

	// a loop that has not completed a cycle yet is aged from when it started
	ref := l.LastRun
	if ref.IsZero() {
		ref = l.Started
		if ref.IsZero() {
			ref = t.started
		}
	} else {
		age := now.Sub(l.LastRun)
		s.LastRun = FormatAge(age)
		s.LastRunAge = null.FloatFrom(age.Seconds())
	}
	s.Status = Classify(now.Sub(ref), l.Interval, t.th, l.Running)
	return s
}

// FormatAge renders d as "H:MM:SS", prefixed with a day count when needed.
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	hms := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	switch days {
	case 0:
		return hms
	case 1:
		return "1 day, " + hms
	default:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
}
