package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

var (
	probeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_health_probe_duration_seconds",
			Help:    "Duration of platform health probes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	platformStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_health_platform_status",
			Help: "Current platform status (1 for the active status label)",
		},
		[]string{"platform", "status"},
	)

	overallStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_health_overall_status",
			Help: "Current overall system status (1 for the active status label)",
		},
		[]string{"status"},
	)

	incidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_health_incidents_total",
			Help: "Total number of recorded incidents",
		},
		[]string{"type", "severity"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_health_events_dropped_total",
			Help: "Events dropped because a subscriber or the sink queue was full",
		},
		[]string{"sink"},
	)
)

var targetStatuses = []models.TargetStatus{
	models.StatusUnknown,
	models.StatusHealthy,
	models.StatusDegraded,
	models.StatusDown,
	models.StatusRestarting,
}

var overallStatuses = []models.OverallStatus{
	models.OverallUnknown,
	models.OverallHealthy,
	models.OverallDegraded,
	models.OverallCritical,
}

// ObserveProbe records the duration of a single probe
func ObserveProbe(platform string, elapsed time.Duration) {
	probeDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// SetPlatformStatus sets the one-hot status gauge for a platform
func SetPlatformStatus(platform string, status models.TargetStatus) {
	for _, s := range targetStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		platformStatus.WithLabelValues(platform, string(s)).Set(v)
	}
}

// SetOverallStatus sets the one-hot overall status gauge
func SetOverallStatus(status models.OverallStatus) {
	for _, s := range overallStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		overallStatus.WithLabelValues(string(s)).Set(v)
	}
}

// IncIncident counts a recorded incident
func IncIncident(t models.IncidentType, severity models.Severity) {
	incidentsTotal.WithLabelValues(string(t), string(severity)).Inc()
}

// IncDropped counts an event dropped for the given sink or subscriber kind
func IncDropped(sink string) {
	eventsDropped.WithLabelValues(sink).Inc()
}
