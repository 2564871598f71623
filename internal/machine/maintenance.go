package machine

import (
	"fmt"
	"math"
	"time"
)

// Level is the severity of a maintenance advisory.
type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	}
	return "none"
}

// MaintenancePolicy sets the service interval and the remaining-time
// thresholds at which advisories are raised.
type MaintenancePolicy struct {
	Interval time.Duration
	Warning  time.Duration
	Critical time.Duration
}

// DefaultMaintenancePolicy services every 50h, warning from 20h out and
// critical from 5h out.
func DefaultMaintenancePolicy() MaintenancePolicy {
	return MaintenancePolicy{
		Interval: 50 * time.Hour,
		Warning:  20 * time.Hour,
		Critical: 5 * time.Hour,
	}
}

// Validate checks 0 < Critical ≤ Warning ≤ Interval.
func (p MaintenancePolicy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %s", p.Interval)
	}
	if p.Critical <= 0 || p.Critical > p.Warning || p.Warning > p.Interval {
		return fmt.Errorf("maintenance thresholds must satisfy 0 < critical (%s) <= warning (%s) <= interval (%s)",
			p.Critical, p.Warning, p.Interval)
	}
	return nil
}

// Advisory is the maintenance outlook for one machine.
type Advisory struct {
	Level      Level
	HoursUntil float64
}

// Advise computes hours until the next multiple of the service interval and
// classifies it. Pure; recomputed on every display.
func Advise(uptime time.Duration, p MaintenancePolicy) Advisory {
	interval := p.Interval.Hours()
	hours := uptime.Hours()
	until := interval - math.Mod(hours, interval)

	adv := Advisory{HoursUntil: until}
	switch {
	case until <= p.Critical.Hours():
		adv.Level = LevelCritical
	case until <= p.Warning.Hours():
		adv.Level = LevelWarning
	}
	return adv
}

// Message renders the advisory for an operator. It is empty for LevelNone.
func (a Advisory) Message(machineName string) string {
	switch a.Level {
	case LevelCritical:
		return fmt.Sprintf("CRITICAL: %s maintenance due in %.1f hours!", machineName, a.HoursUntil)
	case LevelWarning:
		return fmt.Sprintf("WARNING: Schedule check for %s in %.1f hours.", machineName, a.HoursUntil)
	}
	return ""
}
