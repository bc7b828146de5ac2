// Package statesync reconciles stored VM states with what providers report.
package statesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/events"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type Requester interface {
	Request(ctx context.Context, candidate *models.Alert) (bool, error)
}

type Syncer struct {
	registry  *cloud.Registry
	vms       store.VMStore
	requester Requester
	publisher *events.Publisher
}

func New(registry *cloud.Registry, vms store.VMStore, requester Requester, publisher *events.Publisher) *Syncer {
	return &Syncer{registry: registry, vms: vms, requester: requester, publisher: publisher}
}

// SyncAll runs SyncVM over every active VM and returns how many failed.
func (s *Syncer) SyncAll(ctx context.Context) (processed, failed int, err error) {
	vms, err := s.vms.ListActive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list active VMs: %w", err)
	}
	for _, vm := range vms {
		if ctx.Err() != nil {
			break
		}
		if err := s.SyncVM(ctx, vm); err != nil {
			failed++
			continue
		}
		processed++
	}
	return processed, failed, nil
}

// SyncVM stores the provider-reported state when it differs from vm.State.
// Only the transition into stopped or terminated raises an alert, so a VM
// that stays stopped is reported once.
func (s *Syncer) SyncVM(ctx context.Context, vm *models.VM) error {
	log := logger.WithVM(vm.ID)

	adapter, err := s.registry.For(vm.Provider)
	if errors.Is(err, cloud.ErrNotConfigured) {
		log.Debugf("Skipping state sync, %s is not configured", vm.Provider)
		return nil
	}
	if err != nil {
		return err
	}

	current, err := adapter.GetState(ctx, cloud.TargetOf(vm))
	if err != nil {
		log.WithError(err).Warn("Failed to fetch instance state")
		return err
	}

	previous := vm.State
	if current == previous {
		return nil
	}

	// The alert goes first so a failed insert leaves the stored state
	// unchanged and the transition is seen again next tick.
	if candidate := stateAlert(vm, previous, current); candidate != nil {
		if _, err := s.requester.Request(ctx, candidate); err != nil {
			return fmt.Errorf("failed to request %s alert: %w", candidate.AlertType, err)
		}
	}

	if err := s.vms.UpdateState(ctx, vm.ID, current); err != nil {
		log.WithError(err).Error("Failed to update VM state")
		return store.WrapWrite("update", "vm_state", vm.ID, err)
	}
	vm.State = current

	metrics.Get().IncStateChange(string(current))
	s.publisher.VMStateChanged(vm, previous, current)
	log.Infof("State changed from %s to %s", previous, current)
	return nil
}

func stateAlert(vm *models.VM, previous, current models.VMState) *models.Alert {
	var (
		typ      models.AlertType
		severity models.Severity
	)
	switch current {
	case models.VMStateStopped:
		typ, severity = models.AlertInstanceStopped, models.SeverityMedium
	case models.VMStateTerminated:
		typ, severity = models.AlertInstanceTerminated, models.SeverityHigh
	default:
		return nil
	}

	return &models.Alert{
		UserID:    vm.UserID,
		VMID:      vm.ID,
		AlertType: typ,
		Severity:  severity,
		Title:     fmt.Sprintf("VM %s %s", vm.Name, current),
		Message:   fmt.Sprintf("VM %s (%s) changed state from %s to %s", vm.Name, vm.InstanceID, previous, current),
		Metadata: map[string]interface{}{
			"instanceId":    vm.InstanceID,
			"provider":      string(vm.Provider),
			"previousState": string(previous),
			"currentState":  string(current),
		},
	}
}
