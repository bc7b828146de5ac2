package websocket

import (
	"time"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type MessageType string

const (
	MessageTypeMetrics      MessageType = "metrics"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeAlertUpdate  MessageType = "alert_update"
	MessageTypeAnomaly      MessageType = "anomaly"
	MessageTypeSnapshot     MessageType = "snapshot"
	MessageTypeVMState      MessageType = "vm_state"
	MessageTypeJob          MessageType = "job"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscription MessageType = "subscription_update"
)

// Event is the message format sent to websocket clients.
type Event struct {
	Type      MessageType `json:"type"`
	Event     string      `json:"event"`
	VMID      string      `json:"vm_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type SubscriptionUpdate struct {
	Type      MessageType `json:"type"`
	Action    string      `json:"action"`
	VMID      string      `json:"vm_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// messageType maps an internal event to a client message type. Suppressed
// duplicates are internal and map to "".
func messageType(t models.EventType) MessageType {
	switch t {
	case models.EventTypeMetricsCollected:
		return MessageTypeMetrics
	case models.EventTypeAlertCreated:
		return MessageTypeAlert
	case models.EventTypeAlertStatusChanged:
		return MessageTypeAlertUpdate
	case models.EventTypeAnomalyDetected:
		return MessageTypeAnomaly
	case models.EventTypeSnapshotCreated, models.EventTypeSnapshotUpdated,
		models.EventTypeSnapshotDeleted, models.EventTypeSnapshotFailed:
		return MessageTypeSnapshot
	case models.EventTypeVMStateChanged:
		return MessageTypeVMState
	case models.EventTypeJobCompleted, models.EventTypeJobFailed:
		return MessageTypeJob
	case models.EventTypeError:
		return MessageTypeError
	}
	return ""
}

func fromEvent(event *models.Event) *Event {
	msgType := messageType(event.Type)
	if msgType == "" {
		return nil
	}
	return &Event{
		Type:      msgType,
		Event:     string(event.Type),
		VMID:      event.VMID,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}
}
