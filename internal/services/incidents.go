package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tesseract-hub/platform-health-monitor/internal/metrics"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

var severityByType = map[models.IncidentType]models.Severity{
	models.IncidentPlatformDown:    models.SeverityHigh,
	models.IncidentWorkflowError:   models.SeverityHigh,
	models.IncidentAINotResponding: models.SeverityHigh,
	models.IncidentNoRevenueFlow:   models.SeverityMedium,
	models.IncidentSlowResponse:    models.SeverityLow,
}

// SeverityFor looks up the severity of an incident type; unknown types are medium
func SeverityFor(t models.IncidentType) models.Severity {
	if s, ok := severityByType[t]; ok {
		return s
	}
	return models.SeverityMedium
}

// IncidentPublisher receives every new incident as soon as it is recorded
type IncidentPublisher interface {
	PublishIncident(incident models.Incident)
}

// IncidentRecorder keeps a bounded, newest-first incident history
type IncidentRecorder struct {
	mu        sync.RWMutex
	incidents []models.Incident
	limit     int
	publisher IncidentPublisher
	now       func() time.Time
}

// NewIncidentRecorder creates a recorder capped at limit entries
func NewIncidentRecorder(limit int, publisher IncidentPublisher) *IncidentRecorder {
	if limit < 1 {
		limit = 50
	}
	return &IncidentRecorder{
		incidents: make([]models.Incident, 0, limit),
		limit:     limit,
		publisher: publisher,
		now:       time.Now,
	}
}

// Record stores a new incident and notifies the publisher. It never fails.
func (r *IncidentRecorder) Record(platform string, t models.IncidentType, description string) models.Incident {
	now := r.now().UTC()
	incident := models.Incident{
		ID:          fmt.Sprintf("%s_%d", platform, now.UnixMilli()),
		Platform:    platform,
		Type:        t,
		Description: description,
		Severity:    SeverityFor(t),
		Timestamp:   now,
	}

	r.mu.Lock()
	r.incidents = append(r.incidents, models.Incident{})
	copy(r.incidents[1:], r.incidents)
	r.incidents[0] = incident
	if len(r.incidents) > r.limit {
		r.incidents = r.incidents[:r.limit]
	}
	r.mu.Unlock()

	metrics.IncIncident(incident.Type, incident.Severity)
	log.WithFields(log.Fields{
		"incident_id": incident.ID,
		"platform":    platform,
		"type":        t,
		"severity":    incident.Severity,
	}).Warn("Incident recorded: " + description)

	if r.publisher != nil {
		r.publisher.PublishIncident(incident)
	}
	return incident
}

// ResolvePlatform marks every open incident of platform as resolved and returns how many changed
func (r *IncidentRecorder) ResolvePlatform(platform string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	resolved := 0
	for i := range r.incidents {
		inc := &r.incidents[i]
		if inc.Platform != platform || inc.Resolved {
			continue
		}
		inc.Resolved = true
		at := now
		inc.ResolvedAt = &at
		resolved++
	}
	if resolved > 0 {
		log.WithFields(log.Fields{"platform": platform, "count": resolved}).Info("Incidents resolved")
	}
	return resolved
}

// Recent returns up to n newest incidents; n <= 0 returns the whole history
func (r *IncidentRecorder) Recent(n int) []models.Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.incidents) {
		n = len(r.incidents)
	}
	out := make([]models.Incident, n)
	for i := 0; i < n; i++ {
		out[i] = copyIncident(r.incidents[i])
	}
	return out
}

// Latest returns the most recent incident, if any
func (r *IncidentRecorder) Latest() (models.Incident, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.incidents) == 0 {
		return models.Incident{}, false
	}
	return copyIncident(r.incidents[0]), true
}

// Len returns the number of retained incidents
func (r *IncidentRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.incidents)
}

// DetectPatterns scans the newest window incidents and recommends investigating
// every platform with at least threshold of them. Output is advisory only.
func (r *IncidentRecorder) DetectPatterns(window, threshold int) []models.Recommendation {
	recent := r.Recent(window)

	counts := make(map[string]int)
	for _, inc := range recent {
		counts[inc.Platform]++
	}

	platforms := make([]string, 0, len(counts))
	for p, c := range counts {
		if c >= threshold {
			platforms = append(platforms, p)
		}
	}
	sort.Strings(platforms)

	recs := make([]models.Recommendation, 0, len(platforms))
	for _, p := range platforms {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationWarning,
			Platform: p,
			Message:  fmt.Sprintf("%s has %d recent incidents - investigate root cause", p, counts[p]),
			Action:   fmt.Sprintf("Deep dive into %s stability and performance", p),
		})
	}
	return recs
}

func copyIncident(inc models.Incident) models.Incident {
	if inc.ResolvedAt != nil {
		at := *inc.ResolvedAt
		inc.ResolvedAt = &at
	}
	return inc
}
