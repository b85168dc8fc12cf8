package services

import (
	"fmt"
	"time"

	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

// Aggregator reduces per-target statuses to one system verdict.
// CriticalDownCount is the number of down targets at which the system is critical.
type Aggregator struct {
	CriticalDownCount int
}

// NewAggregator creates an aggregator; thresholds below 1 fall back to 2
func NewAggregator(criticalDownCount int) Aggregator {
	if criticalDownCount < 1 {
		criticalDownCount = 2
	}
	return Aggregator{CriticalDownCount: criticalDownCount}
}

// Recompute returns prev with counts, overall status and last update derived from targets.
// It has no side effects; calling it twice with the same input yields the same verdict.
func (a Aggregator) Recompute(prev models.SystemHealth, targets []models.Target, now time.Time) models.SystemHealth {
	counts := CountStatuses(targets)

	next := prev
	next.PlatformCounts = counts
	next.HealthyPlatforms = counts.Healthy
	next.TotalPlatforms = len(targets)
	next.OverallHealth = a.Verdict(counts, len(targets))
	next.LastUpdate = &now
	return next
}

// Verdict applies the precedence rules, first match wins
func (a Aggregator) Verdict(counts models.PlatformCounts, total int) models.OverallStatus {
	threshold := a.CriticalDownCount
	if threshold < 1 {
		threshold = 2
	}

	switch {
	case total == 0:
		return models.OverallUnknown
	case counts.Down >= threshold:
		return models.OverallCritical
	case counts.Down >= 1:
		return models.OverallDegraded
	case counts.Degraded >= 1:
		return models.OverallDegraded
	case counts.Healthy >= 1:
		return models.OverallHealthy
	default:
		return models.OverallUnknown
	}
}

// CountStatuses tallies targets per status. Targets only ever hold known
// statuses, so an unrecognised one panics.
func CountStatuses(targets []models.Target) models.PlatformCounts {
	var counts models.PlatformCounts
	for _, t := range targets {
		if !t.Status.Valid() {
			panic(fmt.Sprintf("target %s has invalid status %q", t.Name, t.Status))
		}
		switch t.Status {
		case models.StatusHealthy:
			counts.Healthy++
		case models.StatusDegraded:
			counts.Degraded++
		case models.StatusDown:
			counts.Down++
		case models.StatusRestarting:
			counts.Restarting++
		case models.StatusUnknown:
			counts.Unknown++
		}
	}
	return counts
}
