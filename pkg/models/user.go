package models

import "time"

type AlertThresholds struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
	Cost   float64 `json:"cost"`
}

func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{CPU: 80, Memory: 85, Disk: 90, Cost: 30}
}

// WithDefaults fills unset cutoffs from d.
func (t AlertThresholds) WithDefaults(d AlertThresholds) AlertThresholds {
	if t.CPU <= 0 {
		t.CPU = d.CPU
	}
	if t.Memory <= 0 {
		t.Memory = d.Memory
	}
	if t.Disk <= 0 {
		t.Disk = d.Disk
	}
	if t.Cost <= 0 {
		t.Cost = d.Cost
	}
	return t
}

type Preferences struct {
	EmailAlerts     bool            `json:"email_alerts"`
	SMSAlerts       bool            `json:"sms_alerts"`
	AlertThresholds AlertThresholds `json:"alert_thresholds"`
}

type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Preferences  Preferences `json:"preferences"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
}

type CostRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	VMID         string    `json:"vm_id,omitempty"`
	Provider     Provider  `json:"provider"`
	ResourceType string    `json:"resource_type"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
}

type JobRun struct {
	ID         int64     `json:"id"`
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}
