package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type VMStore struct {
	mu  sync.RWMutex
	vms map[string]*models.VM
}

var _ store.VMStore = (*VMStore)(nil)

func NewVMStore(vms ...*models.VM) *VMStore {
	s := &VMStore{vms: make(map[string]*models.VM)}
	for _, vm := range vms {
		s.vms[vm.ID] = cloneVM(vm)
	}
	return s
}

func (s *VMStore) Create(ctx context.Context, vm *models.VM) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vms[vm.ID] = cloneVM(vm)
	return nil
}

func (s *VMStore) Get(ctx context.Context, id string) (*models.VM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vm, ok := s.vms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneVM(vm), nil
}

func (s *VMStore) ListActive(ctx context.Context) ([]*models.VM, error) {
	return s.filter(func(vm *models.VM) bool { return vm.IsActive }), nil
}

func (s *VMStore) ListSnapshotCandidates(ctx context.Context, now time.Time) ([]*models.VM, error) {
	return s.filter(func(vm *models.VM) bool {
		return vm.IsActive && vm.SnapshotConfig.IsDue(now)
	}), nil
}

func (s *VMStore) filter(keep func(*models.VM) bool) []*models.VM {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.VM
	for _, vm := range s.vms {
		if keep(vm) {
			out = append(out, cloneVM(vm))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *VMStore) UpdateMetrics(ctx context.Context, vmID string, summary models.MetricSummary) error {
	return s.mutate(vmID, func(vm *models.VM) { vm.Metrics = summary })
}

func (s *VMStore) UpdateState(ctx context.Context, vmID string, state models.VMState) error {
	return s.mutate(vmID, func(vm *models.VM) { vm.State = state })
}

func (s *VMStore) UpdateSnapshotSchedule(ctx context.Context, vmID string, last, next time.Time) error {
	return s.mutate(vmID, func(vm *models.VM) {
		vm.SnapshotConfig.LastSnapshotTime = &last
		vm.SnapshotConfig.NextSnapshotTime = &next
	})
}

func (s *VMStore) AppendAnomaly(ctx context.Context, vmID string, anomaly models.Anomaly) error {
	return s.mutate(vmID, func(vm *models.VM) { vm.Anomalies = append(vm.Anomalies, anomaly) })
}

func (s *VMStore) mutate(vmID string, fn func(*models.VM)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[vmID]
	if !ok {
		return store.ErrNotFound
	}
	fn(vm)
	vm.UpdatedAt = time.Now()
	return nil
}

func cloneVM(vm *models.VM) *models.VM {
	c := *vm
	c.VolumeIDs = append([]string(nil), vm.VolumeIDs...)
	c.Anomalies = append([]models.Anomaly(nil), vm.Anomalies...)
	return &c
}
