package models

import "time"

type EventType string

const (
	EventTypeMetricsCollected   EventType = "metrics_collected"
	EventTypeAlertCreated       EventType = "alert_created"
	EventTypeAlertSuppressed    EventType = "alert_suppressed"
	EventTypeAlertStatusChanged EventType = "alert_status_changed"
	EventTypeAnomalyDetected    EventType = "anomaly_detected"
	EventTypeSnapshotCreated    EventType = "snapshot_created"
	EventTypeSnapshotFailed     EventType = "snapshot_failed"
	EventTypeSnapshotDeleted    EventType = "snapshot_deleted"
	EventTypeSnapshotUpdated    EventType = "snapshot_updated"
	EventTypeVMStateChanged     EventType = "vm_state_changed"
	EventTypeJobCompleted       EventType = "job_completed"
	EventTypeJobFailed          EventType = "job_failed"
	EventTypeError              EventType = "error"
)

func AllEventTypes() []EventType {
	return []EventType{
		EventTypeMetricsCollected,
		EventTypeAlertCreated,
		EventTypeAlertSuppressed,
		EventTypeAlertStatusChanged,
		EventTypeAnomalyDetected,
		EventTypeSnapshotCreated,
		EventTypeSnapshotFailed,
		EventTypeSnapshotDeleted,
		EventTypeSnapshotUpdated,
		EventTypeVMStateChanged,
		EventTypeJobCompleted,
		EventTypeJobFailed,
		EventTypeError,
	}
}

type EventSeverity string

const (
	EventSeverityInfo     EventSeverity = "info"
	EventSeverityWarning  EventSeverity = "warning"
	EventSeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	UserID    string        `json:"user_id,omitempty"`
	VMID      string        `json:"vm_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, vmID, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  EventSeverityInfo,
		VMID:      vmID,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithUser(userID string) *Event {
	e.UserID = userID
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
