// internal/models/events.go
package models

import "time"

// EventType identifies a notification event emitted to the
// notification collaborator.
type EventType string

const (
	EventCaseAssigned  EventType = "CASE_ASSIGNED"
	EventCaseEscalated EventType = "CASE_ESCALATED"
	EventSLABreach     EventType = "SLA_BREACH"
	EventCaseResolved  EventType = "CASE_RESOLVED"
)

// NotificationEvent is the envelope published for every lifecycle
// event the notification collaborator cares about.
type NotificationEvent struct {
	Type      EventType              `json:"type"`
	CaseID    string                 `json:"caseId"`
	DCAID     string                 `json:"dcaId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
