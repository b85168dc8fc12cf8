package models

import (
	"time"
)

// TargetStatus represents the current status of a monitored platform
type TargetStatus string

const (
	StatusUnknown    TargetStatus = "unknown"
	StatusHealthy    TargetStatus = "healthy"
	StatusDegraded   TargetStatus = "degraded"
	StatusDown       TargetStatus = "down"
	StatusRestarting TargetStatus = "restarting"
)

// Valid reports whether s is one of the known target statuses.
func (s TargetStatus) Valid() bool {
	switch s {
	case StatusUnknown, StatusHealthy, StatusDegraded, StatusDown, StatusRestarting:
		return true
	}
	return false
}

// OverallStatus is the system-wide verdict derived from all targets
type OverallStatus string

const (
	OverallHealthy  OverallStatus = "healthy"
	OverallDegraded OverallStatus = "degraded"
	OverallCritical OverallStatus = "critical"
	OverallUnknown  OverallStatus = "unknown"
)

// ProbeError is one entry of a target's rolling error history
type ProbeError struct {
	Time           time.Time `json:"time"`
	Error          string    `json:"error"`
	ResponseTimeMs int64     `json:"responseTime"`
}

// Target represents a monitored platform endpoint (in-memory)
type Target struct {
	Name           string       `json:"name"`
	URL            string       `json:"url"`
	Status         TargetStatus `json:"status"`
	LastCheck      *time.Time   `json:"lastCheck,omitempty"`
	ResponseTimeMs int64        `json:"responseTime"`
	UptimeSeconds  int64        `json:"uptime"`
	StatusCode     int          `json:"statusCode,omitempty"`
	Errors         []ProbeError `json:"errors"`
}

// Clone returns a deep copy safe to hand out to readers.
func (t *Target) Clone() Target {
	c := *t
	if t.LastCheck != nil {
		last := *t.LastCheck
		c.LastCheck = &last
	}
	c.Errors = append([]ProbeError(nil), t.Errors...)
	if c.Errors == nil {
		c.Errors = []ProbeError{}
	}
	return c
}

// IncidentType classifies a detected problem
type IncidentType string

const (
	IncidentPlatformDown          IncidentType = "platform_down"
	IncidentSlowResponse          IncidentType = "slow_response"
	IncidentWorkflowError         IncidentType = "workflow_error"
	IncidentNoRevenueFlow         IncidentType = "no_revenue_flow"
	IncidentAINotResponding       IncidentType = "ai_not_responding"
	IncidentAutomationCheckFailed IncidentType = "automation_check_failed"
	IncidentRevenueCheckFailed    IncidentType = "revenue_check_failed"
	IncidentAICheckFailed         IncidentType = "ai_check_failed"
)

// Severity of an incident
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Incident is a record of a detected degradation or failure
type Incident struct {
	ID          string       `json:"id"`
	Platform    string       `json:"platform"`
	Type        IncidentType `json:"type"`
	Description string       `json:"description"`
	Severity    Severity     `json:"severity"`
	Timestamp   time.Time    `json:"timestamp"`
	Resolved    bool         `json:"resolved"`
	ResolvedAt  *time.Time   `json:"resolvedAt,omitempty"`
}

// PlatformCounts holds the number of targets per status
type PlatformCounts struct {
	Healthy    int `json:"healthy"`
	Degraded   int `json:"degraded"`
	Down       int `json:"down"`
	Unknown    int `json:"unknown"`
	Restarting int `json:"restarting"`
}

// SystemHealth is the aggregate verdict over all targets
type SystemHealth struct {
	OverallHealth    OverallStatus  `json:"overallHealth"`
	HealthyPlatforms int            `json:"healthyPlatforms"`
	TotalPlatforms   int            `json:"totalPlatforms"`
	PlatformCounts   PlatformCounts `json:"platformCounts"`
	UptimeSince      time.Time      `json:"uptime"`
	LastIncident     *Incident      `json:"lastIncident"`
	Incidents        []Incident     `json:"incidents"`
	LastUpdate       *time.Time     `json:"lastUpdate,omitempty"`
}

// StatusResponse is the pull view of the monitor
type StatusResponse struct {
	System    SystemHealth `json:"system"`
	Platforms []Target     `json:"platforms"`
}

// RecommendationType distinguishes advisory urgency
type RecommendationType string

const (
	RecommendationCritical RecommendationType = "critical"
	RecommendationWarning  RecommendationType = "warning"
)

// Recommendation is advisory output of the deep check, never stored as state
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Platform string             `json:"platform"`
	Message  string             `json:"message"`
	Action   string             `json:"action"`
}

// HealthReport is produced after every deep check
type HealthReport struct {
	Timestamp       time.Time        `json:"timestamp"`
	SystemHealth    SystemHealth     `json:"systemHealth"`
	PlatformDetails []Target         `json:"platformDetails"`
	Recommendations []Recommendation `json:"recommendations"`
	Uptime          string           `json:"uptime"`
}
