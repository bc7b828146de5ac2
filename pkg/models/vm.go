package models

import "time"

type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderAWS, ProviderAzure, ProviderGCP:
		return true
	}
	return false
}

func AllProviders() []Provider {
	return []Provider{ProviderAWS, ProviderAzure, ProviderGCP}
}

type VMState string

const (
	VMStateRunning    VMState = "running"
	VMStateStopped    VMState = "stopped"
	VMStatePending    VMState = "pending"
	VMStateStopping   VMState = "stopping"
	VMStateTerminated VMState = "terminated"
	VMStateUnknown    VMState = "unknown"
)

// MetricSummary is the latest polled value of each metric, kept on the VM record.
type MetricSummary struct {
	CPUUtilization    *float64   `json:"cpu_utilization,omitempty"`
	MemoryUtilization *float64   `json:"memory_utilization,omitempty"`
	DiskUtilization   *float64   `json:"disk_utilization,omitempty"`
	NetworkIn         *float64   `json:"network_in,omitempty"`
	NetworkOut        *float64   `json:"network_out,omitempty"`
	LastUpdated       *time.Time `json:"last_updated,omitempty"`
}

type SnapshotConfig struct {
	Enabled          bool       `json:"enabled"`
	Schedule         string     `json:"schedule,omitempty"`
	RetentionDays    int        `json:"retention_days"`
	LastSnapshotTime *time.Time `json:"last_snapshot_time,omitempty"`
	NextSnapshotTime *time.Time `json:"next_snapshot_time,omitempty"`
}

// IsDue reports whether an automated snapshot should be taken at now.
// An unset next time counts as due.
func (c SnapshotConfig) IsDue(now time.Time) bool {
	if !c.Enabled {
		return false
	}
	return c.NextSnapshotTime == nil || !c.NextSnapshotTime.After(now)
}

func (c SnapshotConfig) Retention(fallback int) int {
	if c.RetentionDays > 0 {
		return c.RetentionDays
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultRetentionDays
}

type AnomalyType string

const (
	AnomalyCPUSpike               AnomalyType = "cpu_spike"
	AnomalyMemoryLeak             AnomalyType = "memory_leak"
	AnomalyCostSpike              AnomalyType = "cost_spike"
	AnomalyUnusualTraffic         AnomalyType = "unusual_traffic"
	AnomalyPerformanceDegradation AnomalyType = "performance_degradation"
)

type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	DetectedAt  time.Time   `json:"detected_at"`
	Resolved    bool        `json:"resolved"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

type VM struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Provider       Provider       `json:"provider"`
	InstanceID     string         `json:"instance_id"`
	Name           string         `json:"name"`
	Region         string         `json:"region"`
	Zone           string         `json:"zone,omitempty"`
	ResourceGroup  string         `json:"resource_group,omitempty"`
	InstanceType   string         `json:"instance_type,omitempty"`
	State          VMState        `json:"state"`
	VolumeIDs      []string       `json:"volume_ids,omitempty"`
	Metrics        MetricSummary  `json:"metrics"`
	SnapshotConfig SnapshotConfig `json:"snapshot_config"`
	Anomalies      []Anomaly      `json:"anomalies,omitempty"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func NewVM(userID string, provider Provider, instanceID, name, region string) *VM {
	now := time.Now()
	return &VM{
		ID:         NewUUID(),
		UserID:     userID,
		Provider:   provider,
		InstanceID: instanceID,
		Name:       name,
		Region:     region,
		State:      VMStateUnknown,
		SnapshotConfig: SnapshotConfig{
			Enabled:       true,
			RetentionDays: DefaultRetentionDays,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
