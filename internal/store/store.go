package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

var ErrNotFound = errors.New("record not found")

// PersistenceError wraps a failed store write with enough context to retry it by hand.
type PersistenceError struct {
	Op     string
	Entity string
	Key    string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func WrapWrite(op, entity, key string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Entity: entity, Key: key, Err: err}
}

type VMStore interface {
	Create(ctx context.Context, vm *models.VM) error
	Get(ctx context.Context, id string) (*models.VM, error)
	ListActive(ctx context.Context) ([]*models.VM, error)
	// ListSnapshotCandidates returns active VMs with snapshots enabled whose
	// next snapshot time is unset or not after now.
	ListSnapshotCandidates(ctx context.Context, now time.Time) ([]*models.VM, error)
	UpdateMetrics(ctx context.Context, vmID string, summary models.MetricSummary) error
	UpdateState(ctx context.Context, vmID string, state models.VMState) error
	UpdateSnapshotSchedule(ctx context.Context, vmID string, last, next time.Time) error
	AppendAnomaly(ctx context.Context, vmID string, anomaly models.Anomaly) error
}

type MetricStore interface {
	Append(ctx context.Context, sample *models.MetricSample) error
	// Query returns samples for vmID at or after since, oldest first.
	Query(ctx context.Context, vmID string, since time.Time) ([]*models.MetricSample, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type AlertFilter struct {
	UserID string
	VMID   string
	Status models.AlertStatus
	Limit  int
}

type AlertStore interface {
	// FindActiveRecent returns the newest active alert for key created at or
	// after since, or nil when there is none.
	FindActiveRecent(ctx context.Context, key models.DedupKey, since time.Time) (*models.Alert, error)
	Insert(ctx context.Context, alert *models.Alert) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	UpdateStatus(ctx context.Context, alert *models.Alert) error
	AddNotification(ctx context.Context, alertID string, record models.NotificationRecord) error
}

type SnapshotFilter struct {
	UserID string
	VMID   string
	Status models.SnapshotStatus
	Limit  int
}

type SnapshotStore interface {
	Insert(ctx context.Context, snapshot *models.Snapshot) error
	Get(ctx context.Context, id string) (*models.Snapshot, error)
	GetBySnapshotID(ctx context.Context, snapshotID string) (*models.Snapshot, error)
	Update(ctx context.Context, snapshot *models.Snapshot) error
	// ListExpired returns completed, not yet expired snapshots whose expiry is not after now.
	ListExpired(ctx context.Context, now time.Time) ([]*models.Snapshot, error)
	ListPending(ctx context.Context) ([]*models.Snapshot, error)
	List(ctx context.Context, filter SnapshotFilter) ([]*models.Snapshot, error)
	Stats(ctx context.Context, userID string) (*models.SnapshotStats, error)
}

type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	ListActive(ctx context.Context) ([]*models.User, error)
}

// CredentialStore backs password login for the HTTP API.
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	SetPasswordHash(ctx context.Context, userID, hash string) error
}

type CostStore interface {
	// SumBetween totals a user's cost records whose period starts in [from, to).
	SumBetween(ctx context.Context, userID string, from, to time.Time) (float64, error)
}

type JobRunStore interface {
	Record(ctx context.Context, run *models.JobRun) error
	Recent(ctx context.Context, job string, limit int) ([]*models.JobRun, error)
}
