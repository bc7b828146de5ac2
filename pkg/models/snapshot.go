package models

import "time"

const DefaultRetentionDays = 30

type SnapshotStatus string

const (
	SnapshotPending   SnapshotStatus = "pending"
	SnapshotCompleted SnapshotStatus = "completed"
	SnapshotError     SnapshotStatus = "error"
	SnapshotDeleted   SnapshotStatus = "deleted"
)

type SnapshotType string

const (
	SnapshotManual    SnapshotType = "manual"
	SnapshotScheduled SnapshotType = "scheduled"
	SnapshotAuto      SnapshotType = "auto"
)

type Snapshot struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	VMID          string         `json:"vm_id"`
	Provider      Provider       `json:"provider"`
	SnapshotID    string         `json:"snapshot_id"`
	VolumeID      string         `json:"volume_id,omitempty"`
	InstanceID    string         `json:"instance_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Region        string         `json:"region"`
	Zone          string         `json:"zone,omitempty"`
	ResourceGroup string         `json:"resource_group,omitempty"`
	SizeGB        *int           `json:"size_gb,omitempty"`
	Status        SnapshotStatus `json:"status"`
	SnapshotType  SnapshotType   `json:"snapshot_type"`
	RetentionDays int            `json:"retention_days"`
	ExpiresAt     time.Time      `json:"expires_at"`
	IsExpired     bool           `json:"is_expired"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// NewSnapshot builds a snapshot record for vm. ExpiresAt is fixed here and
// never recomputed afterwards.
func NewSnapshot(vm *VM, snapshotID, volumeID string, typ SnapshotType, retentionDays int, createdAt time.Time) *Snapshot {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Snapshot{
		ID:            NewUUID(),
		UserID:        vm.UserID,
		VMID:          vm.ID,
		Provider:      vm.Provider,
		SnapshotID:    snapshotID,
		VolumeID:      volumeID,
		InstanceID:    vm.InstanceID,
		Region:        vm.Region,
		Zone:          vm.Zone,
		ResourceGroup: vm.ResourceGroup,
		Status:        SnapshotPending,
		SnapshotType:  typ,
		RetentionDays: retentionDays,
		ExpiresAt:     createdAt.Add(time.Duration(retentionDays) * 24 * time.Hour),
		CreatedAt:     createdAt,
	}
}

// IsExpiredAt reports whether a completed snapshot is due for cleanup at now.
func (s *Snapshot) IsExpiredAt(now time.Time) bool {
	return s.Status == SnapshotCompleted && !s.IsExpired && !s.ExpiresAt.After(now)
}

type SnapshotStats struct {
	TotalSnapshots int                    `json:"total_snapshots"`
	TotalSizeGB    int                    `json:"total_size_gb"`
	ByProvider     map[Provider]int       `json:"by_provider"`
	ByStatus       map[SnapshotStatus]int `json:"by_status"`
}
