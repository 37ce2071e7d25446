package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"edgeprobe/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var th = Thresholds{OK: 2, Warning: 4}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		running bool
		want    models.HealthStatus
	}{
		{"fresh", 5 * time.Second, true, models.StatusOK},
		{"at ok bound", 20 * time.Second, true, models.StatusOK},
		{"past ok bound", 21 * time.Second, true, models.StatusWarning},
		{"at warning bound", 40 * time.Second, true, models.StatusWarning},
		{"stale", 41 * time.Second, true, models.StatusCritical},
		{"not running", 0, false, models.StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.age, 10*time.Second, th, tt.running); got != tt.want {
				t.Fatalf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func newTracker(clock *fakeClock) *Tracker {
	tr := NewTracker(th, WithClock(clock.Now))
	tr.Register(models.LoopSimple, 10*time.Second)
	tr.Register(models.LoopAdvanced, time.Minute)
	tr.Register(models.LoopMaintenance, time.Hour)
	for _, l := range []string{models.LoopSimple, models.LoopAdvanced, models.LoopMaintenance} {
		tr.SetRunning(l, true)
	}
	return tr
}

func TestReport_StartupGraceAndDegradation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)

	r := tr.Report()
	if r.Status != models.StatusOK {
		t.Fatalf("fresh tracker status = %s, want OK", r.Status)
	}
	if r.Components.Simple.LastRun != "Never" || r.Components.Simple.LastRunAge.Valid {
		t.Fatalf("expected Never for a loop with no heartbeat: %+v", r.Components.Simple)
	}

	clock.Advance(30 * time.Second)
	r = tr.Report()
	if r.Components.Simple.Status != models.StatusWarning || r.Status != models.StatusWarning {
		t.Fatalf("simple loop should be WARNING after 3 intervals: %+v", r.Components.Simple)
	}

	tr.ProviderHeartbeat("a", models.TestSimple)
	r = tr.Report()
	if r.Status != models.StatusOK {
		t.Fatalf("heartbeat should restore OK, got %s", r.Status)
	}
	if r.Components.Simple.LastRun != "0:00:00" {
		t.Fatalf("last run = %q", r.Components.Simple.LastRun)
	}

	clock.Advance(50 * time.Second)
	r = tr.Report()
	if r.Status != models.StatusCritical {
		t.Fatalf("status = %s, want CRITICAL", r.Status)
	}
}

func TestReport_StoppedLoopIsCritical(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)
	tr.Heartbeat(models.LoopMaintenance)
	tr.SetRunning(models.LoopMaintenance, false)

	r := tr.Report()
	if r.Status != models.StatusCritical || r.Components.Threads.Status != models.StatusCritical {
		t.Fatalf("stopped loop should be CRITICAL: %+v", r)
	}
	if r.Components.Threads.Details[models.LoopMaintenance] {
		t.Fatal("thread details should show maintenance stopped")
	}
}

func TestReport_DisabledLoopIgnored(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)
	tr.SetDisabled(models.LoopAdvanced, true)
	tr.SetRunning(models.LoopAdvanced, false)

	clock.Advance(5 * time.Second)
	tr.ProviderHeartbeat("a", models.TestSimple)
	tr.Heartbeat(models.LoopMaintenance)

	r := tr.Report()
	if r.Components.Advanced.Status != models.StatusDisabled {
		t.Fatalf("advanced = %s, want DISABLED", r.Components.Advanced.Status)
	}
	if r.Status != models.StatusOK {
		t.Fatalf("disabled loop must not degrade overall status, got %s", r.Status)
	}
	if _, ok := r.Components.Threads.Details[models.LoopAdvanced]; ok {
		t.Fatal("disabled loop should not appear in thread details")
	}
}

func TestReport_Providers(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)
	tr.RegisterProvider("b", models.TestSimple, 10*time.Second)
	tr.RegisterProvider("a", models.TestSimple, 10*time.Second)

	clock.Advance(25 * time.Second)
	tr.ProviderHeartbeat("a", models.TestSimple)

	r := tr.Report()
	if len(r.Providers) != 2 || r.Providers[0].Provider != "a" {
		t.Fatalf("providers = %+v", r.Providers)
	}
	if r.Providers[0].Status != models.StatusOK || !r.Providers[0].LastRun.Valid {
		t.Fatalf("provider a = %+v", r.Providers[0])
	}
	if r.Providers[1].Status != models.StatusWarning || r.Providers[1].LastRun.Valid {
		t.Fatalf("provider b = %+v", r.Providers[1])
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{90 * time.Second, "0:01:30"},
		{26 * time.Hour, "1 day, 2:00:00"},
		{49*time.Hour + 5*time.Second, "2 days, 1:00:05"},
	}
	for _, tt := range tests {
		if got := FormatAge(tt.d); got != tt.want {
			t.Errorf("FormatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestHostSampler(t *testing.T) {
	s, err := HostSampler{DiskPath: t.TempDir()}.Sample(context.Background())
	if err != nil {
		t.Skipf("host figures unavailable: %v", err)
	}
	if s.MemoryPercent <= 0 || s.MemoryPercent > 100 {
		t.Fatalf("memory percent out of range: %v", s.MemoryPercent)
	}
}
