package models

import "time"

// EventType names a real-time event pushed to observers
type EventType string

const (
	EventHealthUpdate      EventType = "health-update"
	EventNewIncident       EventType = "new-incident"
	EventCriticalAlert     EventType = "critical-alert"
	EventCriticalResolved  EventType = "critical-resolved"
	EventHealthReport      EventType = "health-report"
	EventPlatformRestarted EventType = "platform-restarted"
)

// Event is the envelope delivered to subscribers and sinks
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// HealthUpdate is the payload of a health-update event
type HealthUpdate struct {
	SystemHealth SystemHealth `json:"systemHealth"`
	Platforms    []Target     `json:"platforms"`
}

// CriticalAlert is the payload of a critical-alert event
type CriticalAlert struct {
	Message   string   `json:"message"`
	Platforms []string `json:"platforms"`
}

// CriticalResolved is the payload of a critical-resolved event
type CriticalResolved struct {
	Message       string        `json:"message"`
	OverallHealth OverallStatus `json:"overallHealth"`
}

// PlatformRestarted is the payload of a platform-restarted event
type PlatformRestarted struct {
	Platform string `json:"platform"`
}
