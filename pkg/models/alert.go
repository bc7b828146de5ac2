package models

import "time"

type AlertType string

const (
	AlertCPUHigh                AlertType = "cpu_high"
	AlertMemoryHigh             AlertType = "memory_high"
	AlertDiskHigh               AlertType = "disk_high"
	AlertCostSpike              AlertType = "cost_spike"
	AlertInstanceStopped        AlertType = "instance_stopped"
	AlertInstanceTerminated     AlertType = "instance_terminated"
	AlertSnapshotFailed         AlertType = "snapshot_failed"
	AlertAnomalyDetected        AlertType = "anomaly_detected"
	AlertSecurityIssue          AlertType = "security_issue"
	AlertPerformanceDegradation AlertType = "performance_degradation"
	AlertBackupMissed           AlertType = "backup_missed"
	AlertQuotaExceeded          AlertType = "quota_exceeded"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusIgnored      AlertStatus = "ignored"
)

// CanTransitionTo reports whether moving from s to next goes forward.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertStatusActive:
		return next == AlertStatusAcknowledged || next == AlertStatusResolved || next == AlertStatusIgnored
	case AlertStatusAcknowledged:
		return next == AlertStatusResolved
	}
	return false
}

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusIgnored:
		return true
	}
	return false
}

type NotificationChannel string

const (
	ChannelEmail   NotificationChannel = "email"
	ChannelSMS     NotificationChannel = "sms"
	ChannelPush    NotificationChannel = "push"
	ChannelWebhook NotificationChannel = "webhook"
	ChannelLog     NotificationChannel = "log"
)

type NotificationRecord struct {
	Channel NotificationChannel `json:"channel"`
	SentAt  time.Time           `json:"sent_at"`
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
}

type Alert struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	VMID            string                 `json:"vm_id,omitempty"`
	AlertType       AlertType              `json:"alert_type"`
	Severity        Severity               `json:"severity"`
	Title           string                 `json:"title"`
	Message         string                 `json:"message"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Status          AlertStatus            `json:"status"`
	CreatedAt       time.Time              `json:"created_at"`
	AcknowledgedAt  *time.Time             `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string                 `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
	ResolvedBy      string                 `json:"resolved_by,omitempty"`
	ResolutionNotes string                 `json:"resolution_notes,omitempty"`
	Notifications   []NotificationRecord   `json:"notifications,omitempty"`
}

// DedupKey identifies alerts that suppress each other inside the dedup window.
type DedupKey struct {
	UserID    string
	VMID      string
	AlertType AlertType
}

func (a *Alert) Key() DedupKey {
	return DedupKey{UserID: a.UserID, VMID: a.VMID, AlertType: a.AlertType}
}

func (k DedupKey) String() string {
	return k.UserID + "/" + k.VMID + "/" + string(k.AlertType)
}
