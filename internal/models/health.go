package models

import "time"

// HealthStatus is the classification reported by /status and /health.
type HealthStatus string

const (
	StatusOK       HealthStatus = "OK"
	StatusWarning  HealthStatus = "WARNING"
	StatusCritical HealthStatus = "CRITICAL"
	// StatusDisabled marks a loop with nothing to do; it never affects the overall status.
	StatusDisabled HealthStatus = "DISABLED"
)

func (s HealthStatus) rank() int {
	switch s {
	case StatusOK:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	default:
		return 0
	}
}

// Worst returns the more severe of a and b.
func Worst(a, b HealthStatus) HealthStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Loop names.
const (
	LoopSimple      = "simple_monitor"
	LoopAdvanced    = "advanced_monitor"
	LoopMaintenance = "maintenance"
)

// LoopHealth is the heartbeat of one scheduler loop.
type LoopHealth struct {
	Name     string
	LastRun  time.Time // zero until the first successful cycle
	Interval time.Duration
	Running  bool
	Started  time.Time
	Disabled bool
}
