package statesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type Action string

const (
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionReboot Action = "reboot"
)

var ErrUnknownAction = errors.New("unknown power action")

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStart, ActionStop, ActionReboot:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Power asks the provider to start, stop or reboot one of the caller's VMs
// and records the transitional state. The next sync tick settles the final
// state and raises any alert for it.
func (s *Syncer) Power(ctx context.Context, userID, vmID string, action Action) (*models.VM, error) {
	vm, err := s.vms.Get(ctx, vmID)
	if err != nil {
		return nil, err
	}
	if vm.UserID != userID {
		return nil, store.ErrNotFound
	}
	adapter, err := s.registry.For(vm.Provider)
	if err != nil {
		return nil, err
	}

	target := cloud.TargetOf(vm)
	var next models.VMState
	switch action {
	case ActionStart:
		next = models.VMStatePending
		err = adapter.Start(ctx, target)
	case ActionStop:
		next = models.VMStateStopping
		err = adapter.Stop(ctx, target)
	case ActionReboot:
		next = vm.State
		err = adapter.Reboot(ctx, target)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	log := logger.WithVM(vm.ID).WithField("action", action)
	if err != nil {
		log.WithError(err).Warn("Power action failed")
		return nil, err
	}
	log.Info("Power action requested")

	if next == vm.State {
		return vm, nil
	}
	previous := vm.State
	if err := s.vms.UpdateState(ctx, vm.ID, next); err != nil {
		return nil, store.WrapWrite("update", "vm_state", vm.ID, err)
	}
	vm.State = next
	s.publisher.VMStateChanged(vm, previous, next)
	return vm, nil
}
