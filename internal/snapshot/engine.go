// Package snapshot runs the snapshot lifecycle: scheduled creation, expiry
// cleanup, status sync, and the manual operations behind the API.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/events"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/internal/schedule"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const ManualRetentionDays = 30

var (
	ErrAlreadyDeleted = errors.New("snapshot already deleted")
	ErrNoVolumes      = errors.New("instance has no volumes")
)

type Requester interface {
	Request(ctx context.Context, candidate *models.Alert) (bool, error)
}

type Config struct {
	DefaultRetentionDays int
	// Location is the zone cron schedules are evaluated in.
	Location       *time.Location
	AlertOnFailure bool
	Now            func() time.Time
}

// Result counts items handled by one batch operation.
type Result struct {
	Processed int
	Failed    int
}

type Engine struct {
	config    Config
	registry  *cloud.Registry
	vms       store.VMStore
	snapshots store.SnapshotStore
	requester Requester
	publisher *events.Publisher
}

func NewEngine(cfg Config, registry *cloud.Registry, vms store.VMStore, snapshots store.SnapshotStore, requester Requester, publisher *events.Publisher) *Engine {
	if cfg.DefaultRetentionDays == 0 {
		cfg.DefaultRetentionDays = models.DefaultRetentionDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		config:    cfg,
		registry:  registry,
		vms:       vms,
		snapshots: snapshots,
		requester: requester,
		publisher: publisher,
	}
}

// Candidates returns the VMs due for an automated snapshot.
func (e *Engine) Candidates(ctx context.Context) ([]*models.VM, error) {
	vms, err := e.vms.ListSnapshotCandidates(ctx, e.config.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot candidates: %w", err)
	}
	return vms, nil
}

// CreateDue snapshots every due VM in turn. One VM failing never stops the
// others.
func (e *Engine) CreateDue(ctx context.Context) (Result, error) {
	var res Result
	vms, err := e.Candidates(ctx)
	if err != nil {
		return res, err
	}
	for _, vm := range vms {
		if ctx.Err() != nil {
			break
		}
		if err := e.SnapshotVM(ctx, vm); err != nil {
			res.Failed++
			continue
		}
		res.Processed++
	}
	return res, nil
}

// SnapshotVM takes one automated snapshot per attached volume and advances
// the VM's schedule. The schedule stays put only when no volume was
// snapshotted, so a fully failed VM is retried next tick while a partial
// failure is alerted on and waits for the next occurrence.
func (e *Engine) SnapshotVM(ctx context.Context, vm *models.VM) error {
	log := logger.WithVM(vm.ID)

	adapter, err := e.registry.For(vm.Provider)
	if errors.Is(err, cloud.ErrNotConfigured) {
		log.Debugf("Skipping snapshot, %s is not configured", vm.Provider)
		return nil
	}
	if err != nil {
		return err
	}

	now := e.config.Now()
	taken, createErr := e.createAll(ctx, adapter, vm, models.SnapshotAuto, vm.SnapshotConfig.Retention(e.config.DefaultRetentionDays), "", now, false)
	if createErr != nil {
		e.fail(ctx, vm, createErr)
		if len(taken) == 0 {
			return createErr
		}
		log.Warnf("Snapshotted %d volumes, the rest failed", len(taken))
	}

	next := schedule.Next(vm.SnapshotConfig.Schedule, now, e.config.Location)
	if err := e.vms.UpdateSnapshotSchedule(ctx, vm.ID, now, next); err != nil {
		log.WithError(err).Error("Failed to update snapshot schedule")
		return store.WrapWrite("update", "snapshot_schedule", vm.ID, err)
	}
	log.Infof("Snapshot taken, next at %s", next.Format(time.RFC3339))
	return createErr
}

// CreateManual snapshots every volume of the caller's VM. A provider failure
// is recorded as a pending placeholder instead of failing the request.
func (e *Engine) CreateManual(ctx context.Context, userID, vmID, description string) ([]*models.Snapshot, error) {
	vm, err := e.vms.Get(ctx, vmID)
	if err != nil {
		return nil, err
	}
	if vm.UserID != userID {
		return nil, store.ErrNotFound
	}
	adapter, err := e.registry.For(vm.Provider)
	if err != nil {
		return nil, err
	}
	return e.createAll(ctx, adapter, vm, models.SnapshotManual, ManualRetentionDays, description, e.config.Now(), true)
}

func (e *Engine) createAll(
	ctx context.Context,
	adapter cloud.Adapter,
	vm *models.VM,
	typ models.SnapshotType,
	retention int,
	description string,
	now time.Time,
	placeholderOnError bool,
) ([]*models.Snapshot, error) {
	target := cloud.TargetOf(vm)

	volumes := vm.VolumeIDs
	if len(volumes) == 0 {
		listed, err := adapter.ListVolumes(ctx, target)
		if err != nil {
			return nil, err
		}
		volumes = listed
	}
	if len(volumes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVolumes, vm.InstanceID)
	}

	if description == "" {
		description = fmt.Sprintf("%s snapshot of %s", typ, vm.Name)
	}

	var (
		out  []*models.Snapshot
		errs []error
	)
	for i, volumeID := range volumes {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		name := fmt.Sprintf("%s-%s-%s-%d", vm.Name, typ, now.UTC().Format("20060102-150405"), i)

		ref, err := adapter.CreateSnapshot(ctx, target, volumeID, name, description)
		metrics.Get().IncSnapshot(string(vm.Provider), "create", err == nil)

		var snap *models.Snapshot
		switch {
		case err == nil:
			snap = models.NewSnapshot(vm, ref.SnapshotID, volumeID, typ, retention, now)
			snap.Status = ref.Status
			snap.SizeGB = ref.SizeGB
			if ref.Status == models.SnapshotCompleted {
				snap.CompletedAt = &now
			}
		case placeholderOnError && isProviderError(err):
			logger.WithVM(vm.ID).WithError(err).Warn("Provider snapshot failed, recording placeholder")
			snap = models.NewSnapshot(vm, "snap-"+models.NewUUID(), volumeID, typ, retention, now)
			snap.ErrorMessage = err.Error()
		default:
			errs = append(errs, fmt.Errorf("volume %s: %w", volumeID, err))
			continue
		}
		snap.Name = name
		snap.Description = description

		if err := e.snapshots.Insert(ctx, snap); err != nil {
			logger.WithFields(map[string]interface{}{
				"vm_id":       vm.ID,
				"snapshot_id": snap.SnapshotID,
			}).WithError(err).Error("Failed to persist snapshot")
			errs = append(errs, store.WrapWrite("insert", "snapshot", snap.SnapshotID, err))
			continue
		}
		e.publisher.SnapshotCreated(snap)
		out = append(out, snap)
	}
	return out, errors.Join(errs...)
}

func isProviderError(err error) bool {
	var pe *cloud.ProviderError
	return errors.As(err, &pe)
}

func (e *Engine) fail(ctx context.Context, vm *models.VM, cause error) {
	logger.WithVM(vm.ID).WithError(cause).Error("Automated snapshot failed")
	e.publisher.SnapshotFailed(vm, cause)

	if !e.config.AlertOnFailure || e.requester == nil {
		return
	}
	candidate := &models.Alert{
		UserID:    vm.UserID,
		VMID:      vm.ID,
		AlertType: models.AlertSnapshotFailed,
		Severity:  models.SeverityHigh,
		Title:     fmt.Sprintf("Snapshot failed for %s", vm.Name),
		Message:   fmt.Sprintf("Automated snapshot of %s failed: %v", vm.Name, cause),
		Metadata: map[string]interface{}{
			"instanceId": vm.InstanceID,
			"provider":   string(vm.Provider),
			"error":      cause.Error(),
		},
	}
	if _, err := e.requester.Request(ctx, candidate); err != nil {
		logger.WithVM(vm.ID).WithError(err).Error("Failed to raise snapshot failure alert")
	}
}

// ExpireAndClean deletes every completed snapshot past its expiry. A provider
// that no longer has the snapshot counts as deleted.
func (e *Engine) ExpireAndClean(ctx context.Context) (Result, error) {
	var res Result
	now := e.config.Now()

	expired, err := e.snapshots.ListExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("failed to list expired snapshots: %w", err)
	}

	for _, snap := range expired {
		if ctx.Err() != nil {
			break
		}
		log := logger.WithFields(map[string]interface{}{"vm_id": snap.VMID, "snapshot_id": snap.SnapshotID})

		if err := e.deleteAtProvider(ctx, snap); err != nil {
			log.WithError(err).Warn("Failed to delete expired snapshot")
			res.Failed++
			continue
		}
		snap.IsExpired = true
		if err := e.markDeleted(ctx, snap, now); err != nil {
			log.WithError(err).Error("Failed to mark snapshot deleted")
			res.Failed++
			continue
		}
		res.Processed++
	}

	if res.Processed > 0 || res.Failed > 0 {
		logger.Infof("Expired snapshot cleanup: %d deleted, %d failed", res.Processed, res.Failed)
	}
	return res, nil
}

// Delete removes one of the caller's snapshots at the provider and marks it deleted.
func (e *Engine) Delete(ctx context.Context, userID, id string) (*models.Snapshot, error) {
	snap, err := e.snapshots.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.UserID != userID {
		return nil, store.ErrNotFound
	}
	if snap.Status == models.SnapshotDeleted {
		return nil, ErrAlreadyDeleted
	}
	if err := e.deleteAtProvider(ctx, snap); err != nil {
		return nil, err
	}
	if err := e.markDeleted(ctx, snap, e.config.Now()); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Engine) deleteAtProvider(ctx context.Context, snap *models.Snapshot) error {
	adapter, err := e.registry.For(snap.Provider)
	if err != nil {
		return err
	}
	err = adapter.DeleteSnapshot(ctx, cloud.TargetOfSnapshot(snap), snap.SnapshotID)
	metrics.Get().IncSnapshot(string(snap.Provider), "delete", err == nil || errors.Is(err, cloud.ErrNotFound))
	if err != nil && !errors.Is(err, cloud.ErrNotFound) {
		return err
	}
	return nil
}

func (e *Engine) markDeleted(ctx context.Context, snap *models.Snapshot, now time.Time) error {
	snap.Status = models.SnapshotDeleted
	snap.DeletedAt = &now
	if err := e.snapshots.Update(ctx, snap); err != nil {
		return store.WrapWrite("update", "snapshot", snap.SnapshotID, err)
	}
	e.publisher.SnapshotDeleted(snap)
	return nil
}

// SyncPending polls the provider for every pending snapshot and records
// completion or failure.
func (e *Engine) SyncPending(ctx context.Context) (Result, error) {
	var res Result

	pending, err := e.snapshots.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list pending snapshots: %w", err)
	}

	for _, snap := range pending {
		if ctx.Err() != nil {
			break
		}
		changed, err := e.syncOne(ctx, snap)
		if err != nil {
			logger.WithFields(map[string]interface{}{"vm_id": snap.VMID, "snapshot_id": snap.SnapshotID}).
				WithError(err).Warn("Snapshot status sync failed")
			res.Failed++
			continue
		}
		if changed {
			res.Processed++
		}
	}
	return res, nil
}

func (e *Engine) syncOne(ctx context.Context, snap *models.Snapshot) (bool, error) {
	adapter, err := e.registry.For(snap.Provider)
	if errors.Is(err, cloud.ErrNotConfigured) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ref, err := adapter.SnapshotStatus(ctx, cloud.TargetOfSnapshot(snap), snap.SnapshotID)
	switch {
	case errors.Is(err, cloud.ErrNotFound):
		snap.Status = models.SnapshotError
		if snap.ErrorMessage == "" {
			snap.ErrorMessage = "snapshot not found at provider"
		}
	case err != nil:
		return false, err
	case ref.Status == models.SnapshotPending:
		return false, nil
	default:
		snap.Status = ref.Status
		if ref.SizeGB != nil {
			snap.SizeGB = ref.SizeGB
		}
		if ref.Status == models.SnapshotCompleted {
			now := e.config.Now()
			snap.CompletedAt = &now
		}
		if ref.Status == models.SnapshotError {
			snap.ErrorMessage = ref.Message
		}
	}

	if err := e.snapshots.Update(ctx, snap); err != nil {
		return false, store.WrapWrite("update", "snapshot", snap.SnapshotID, err)
	}
	e.publisher.SnapshotUpdated(snap)
	return true, nil
}

func (e *Engine) List(ctx context.Context, filter store.SnapshotFilter) ([]*models.Snapshot, error) {
	return e.snapshots.List(ctx, filter)
}

func (e *Engine) Stats(ctx context.Context, userID string) (*models.SnapshotStats, error) {
	return e.snapshots.Stats(ctx, userID)
}
