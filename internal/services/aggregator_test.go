package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

func targetsWith(statuses ...models.TargetStatus) []models.Target {
	targets := make([]models.Target, 0, len(statuses))
	for i, s := range statuses {
		targets = append(targets, models.Target{Name: string(rune('a' + i)), Status: s})
	}
	return targets
}

func TestAggregator_Recompute(t *testing.T) {
	agg := NewAggregator(2)
	now := time.Now()

	tests := []struct {
		name     string
		statuses []models.TargetStatus
		want     models.OverallStatus
	}{
		{"empty set", nil, models.OverallUnknown},
		{"all unknown", []models.TargetStatus{models.StatusUnknown, models.StatusUnknown}, models.OverallUnknown},
		{"two down", []models.TargetStatus{models.StatusDown, models.StatusDown, models.StatusHealthy}, models.OverallCritical},
		{"three down", []models.TargetStatus{models.StatusDown, models.StatusDown, models.StatusDown}, models.OverallCritical},
		{"two down beats degraded", []models.TargetStatus{models.StatusDown, models.StatusDown, models.StatusDegraded}, models.OverallCritical},
		{"one down", []models.TargetStatus{models.StatusDown, models.StatusHealthy, models.StatusHealthy}, models.OverallDegraded},
		{"one down only", []models.TargetStatus{models.StatusDown}, models.OverallDegraded},
		{"degraded", []models.TargetStatus{models.StatusDegraded, models.StatusHealthy}, models.OverallDegraded},
		{"all healthy", []models.TargetStatus{models.StatusHealthy, models.StatusHealthy}, models.OverallHealthy},
		{"healthy and unknown", []models.TargetStatus{models.StatusHealthy, models.StatusUnknown}, models.OverallHealthy},
		{"restarting only", []models.TargetStatus{models.StatusRestarting}, models.OverallUnknown},
		{"healthy and restarting", []models.TargetStatus{models.StatusHealthy, models.StatusRestarting}, models.OverallHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := agg.Recompute(models.SystemHealth{}, targetsWith(tt.statuses...), now)
			assert.Equal(t, tt.want, snap.OverallHealth)
			assert.Equal(t, len(tt.statuses), snap.TotalPlatforms)
			assert.Equal(t, now, *snap.LastUpdate)
		})
	}
}

func TestAggregator_ConfigurableCriticalThreshold(t *testing.T) {
	agg := NewAggregator(3)
	targets := targetsWith(models.StatusDown, models.StatusDown, models.StatusHealthy)

	snap := agg.Recompute(models.SystemHealth{}, targets, time.Now())
	assert.Equal(t, models.OverallDegraded, snap.OverallHealth)

	targets = append(targets, models.Target{Name: "z", Status: models.StatusDown})
	snap = agg.Recompute(models.SystemHealth{}, targets, time.Now())
	assert.Equal(t, models.OverallCritical, snap.OverallHealth)
}

func TestAggregator_InvalidThresholdFallsBack(t *testing.T) {
	assert.Equal(t, 2, NewAggregator(0).CriticalDownCount)
	assert.Equal(t, models.OverallCritical, Aggregator{}.Verdict(models.PlatformCounts{Down: 2}, 2))
}

func TestAggregator_Counts(t *testing.T) {
	targets := targetsWith(
		models.StatusHealthy, models.StatusHealthy,
		models.StatusDegraded,
		models.StatusDown,
		models.StatusUnknown,
		models.StatusRestarting,
		models.StatusUnknown,
	)

	snap := NewAggregator(2).Recompute(models.SystemHealth{}, targets, time.Now())

	assert.Equal(t, models.PlatformCounts{Healthy: 2, Degraded: 1, Down: 1, Unknown: 2, Restarting: 1}, snap.PlatformCounts)
	assert.Equal(t, 2, snap.HealthyPlatforms)
	assert.Equal(t, 7, snap.TotalPlatforms)
}

func TestCountStatuses_InvalidStatusPanics(t *testing.T) {
	assert.PanicsWithValue(t, `target b has invalid status "bogus"`, func() {
		CountStatuses(targetsWith(models.StatusHealthy, models.TargetStatus("bogus")))
	})
	assert.Panics(t, func() {
		CountStatuses([]models.Target{{Name: "empty"}})
	})
}

func TestAggregator_RecomputeIsIdempotent(t *testing.T) {
	agg := NewAggregator(2)
	targets := targetsWith(models.StatusHealthy, models.StatusDown, models.StatusDegraded)
	now := time.Now()

	first := agg.Recompute(models.SystemHealth{}, targets, now)
	second := agg.Recompute(first, targets, now)

	assert.Equal(t, first.PlatformCounts, second.PlatformCounts)
	assert.Equal(t, first.OverallHealth, second.OverallHealth)
}

func TestAggregator_RecomputePreservesIncidentFields(t *testing.T) {
	origin := time.Now().Add(-time.Hour)
	inc := models.Incident{ID: "x_1"}
	prev := models.SystemHealth{UptimeSince: origin, LastIncident: &inc, Incidents: []models.Incident{inc}}

	snap := NewAggregator(2).Recompute(prev, targetsWith(models.StatusHealthy), time.Now())

	assert.Equal(t, origin, snap.UptimeSince)
	assert.Equal(t, &inc, snap.LastIncident)
	assert.Len(t, snap.Incidents, 1)
}
