// Package simulated is an in-process cloud provider. It backs the "simulated"
// cloud mode and doubles as the adapter used in tests, with failure injection
// and pinned metric values.
package simulated

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const sampleInterval = 5 * time.Minute

type Config struct {
	Provider   models.Provider
	BaseCPU    float64
	BaseMemory float64
	BaseDisk   float64
	Variance   float64
	Pattern    string
	Seed       int64
	// CompleteImmediately reports new snapshots as completed instead of pending.
	CompleteImmediately bool
}

type instance struct {
	cloud.Instance
	pinned *models.MetricSample
	cpu    float64
}

type snapshot struct {
	ref     cloud.SnapshotRef
	deleted bool
}

type Fleet struct {
	mu        sync.Mutex
	cfg       Config
	pattern   Pattern
	rng       *rand.Rand
	now       func() time.Time
	seq       int
	instances map[string]*instance
	snapshots map[string]*snapshot
	failures  map[string]error
	calls     map[string]int
}

var _ cloud.Adapter = (*Fleet)(nil)

func NewFleet(cfg Config) *Fleet {
	if cfg.Provider == "" {
		cfg.Provider = models.ProviderAWS
	}
	if cfg.BaseCPU == 0 {
		cfg.BaseCPU = 50.0
	}
	if cfg.BaseMemory == 0 {
		cfg.BaseMemory = 60.0
	}
	if cfg.BaseDisk == 0 {
		cfg.BaseDisk = 55.0
	}
	if cfg.Variance == 0 {
		cfg.Variance = 10.0
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))
	return &Fleet{
		cfg:       cfg,
		rng:       rng,
		pattern:   ParsePattern(cfg.Pattern, time.Now(), rng),
		now:       time.Now,
		instances: make(map[string]*instance),
		snapshots: make(map[string]*snapshot),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *Fleet) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *Fleet) AddInstance(inst cloud.Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst.State == "" {
		inst.State = models.VMStateRunning
	}
	f.instances[inst.InstanceID] = &instance{Instance: inst, cpu: f.cfg.BaseCPU}
}

// AddVM registers the instance behind vm, with one volume per vm.VolumeIDs.
func (f *Fleet) AddVM(vm *models.VM) {
	state := vm.State
	if state == "" || state == models.VMStateUnknown {
		state = models.VMStateRunning
	}
	f.AddInstance(cloud.Instance{
		InstanceID:    vm.InstanceID,
		Name:          vm.Name,
		Region:        vm.Region,
		Zone:          vm.Zone,
		ResourceGroup: vm.ResourceGroup,
		InstanceType:  vm.InstanceType,
		State:         state,
		VolumeIDs:     append([]string(nil), vm.VolumeIDs...),
	})
}

func (f *Fleet) SetState(instanceID string, state models.VMState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[instanceID]; ok {
		inst.State = state
	}
}

// PinMetrics makes GetMetrics return exactly sample for instanceID.
func (f *Fleet) PinMetrics(instanceID string, sample models.MetricSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[instanceID]; ok {
		inst.pinned = &sample
	}
}

// SetBaseCPU changes the generated CPU level for instanceID.
func (f *Fleet) SetBaseCPU(instanceID string, cpu float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[instanceID]; ok {
		inst.cpu = cpu
	}
}

// Fail makes op fail with err. An empty instanceID fails op for every instance.
// create_snapshot also accepts a volume ID in place of the instance ID.
func (f *Fleet) Fail(op, instanceID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"/"+instanceID] = err
}

func (f *Fleet) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
}

// SetSnapshotStatus overrides what the provider reports for snapshotID.
func (f *Fleet) SetSnapshotStatus(snapshotID string, status models.SnapshotStatus, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.snapshots[snapshotID]; ok {
		s.ref.Status = status
		s.ref.Message = message
	}
}

// SnapshotExists reports whether snapshotID exists and was not deleted.
func (f *Fleet) SnapshotExists(snapshotID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[snapshotID]
	return ok && !s.deleted
}

func (f *Fleet) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// begin records the call and returns the injected failure, if any. Callers hold f.mu.
func (f *Fleet) begin(op, instanceID string) error {
	f.calls[op]++
	if err, ok := f.failures[op+"/"+instanceID]; ok {
		return cloud.NewProviderError(f.cfg.Provider, op, err)
	}
	if err, ok := f.failures[op+"/"]; ok {
		return cloud.NewProviderError(f.cfg.Provider, op, err)
	}
	return nil
}

func (f *Fleet) lookup(op, instanceID string) (*instance, error) {
	if err := f.begin(op, instanceID); err != nil {
		return nil, err
	}
	inst, ok := f.instances[instanceID]
	if !ok {
		return nil, &cloud.ProviderError{
			Provider: f.cfg.Provider,
			Op:       op,
			Message:  fmt.Sprintf("instance %s not found", instanceID),
			Err:      cloud.ErrNotFound,
		}
	}
	return inst, nil
}

func (f *Fleet) Provider() models.Provider {
	return f.cfg.Provider
}

func (f *Fleet) ListInstances(ctx context.Context, region string) ([]cloud.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("list_instances", ""); err != nil {
		return nil, err
	}

	var out []cloud.Instance
	for _, inst := range f.instances {
		if region == "" || inst.Region == region {
			c := inst.Instance
			c.VolumeIDs = append([]string(nil), inst.VolumeIDs...)
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fleet) GetState(ctx context.Context, t cloud.Target) (models.VMState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, err := f.lookup("get_state", t.InstanceID)
	if err != nil {
		return models.VMStateUnknown, err
	}
	return inst.State, nil
}

func (f *Fleet) transition(op string, t cloud.Target, to models.VMState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, err := f.lookup(op, t.InstanceID)
	if err != nil {
		return err
	}
	if inst.State == models.VMStateTerminated {
		return &cloud.ProviderError{Provider: f.cfg.Provider, Op: op, Message: "instance is terminated"}
	}
	inst.State = to
	return nil
}

func (f *Fleet) Start(ctx context.Context, t cloud.Target) error {
	return f.transition("start", t, models.VMStateRunning)
}

func (f *Fleet) Stop(ctx context.Context, t cloud.Target) error {
	return f.transition("stop", t, models.VMStateStopped)
}

func (f *Fleet) Reboot(ctx context.Context, t cloud.Target) error {
	return f.transition("reboot", t, models.VMStateRunning)
}

func (f *Fleet) ListVolumes(ctx context.Context, t cloud.Target) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, err := f.lookup("list_volumes", t.InstanceID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), inst.VolumeIDs...), nil
}

func (f *Fleet) CreateSnapshot(ctx context.Context, t cloud.Target, volumeID, name, description string) (*cloud.SnapshotRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup("create_snapshot", t.InstanceID); err != nil {
		return nil, err
	}
	if err, ok := f.failures["create_snapshot/"+volumeID]; ok {
		return nil, cloud.NewProviderError(f.cfg.Provider, "create_snapshot", err)
	}

	f.seq++
	size := 8 + f.seq%4*8
	ref := cloud.SnapshotRef{
		SnapshotID: fmt.Sprintf("snap-sim-%s-%d", f.cfg.Provider, f.seq),
		VolumeID:   volumeID,
		Status:     models.SnapshotPending,
		SizeGB:     &size,
	}
	if f.cfg.CompleteImmediately {
		ref.Status = models.SnapshotCompleted
	}
	f.snapshots[ref.SnapshotID] = &snapshot{ref: ref}

	out := ref
	return &out, nil
}

// SnapshotStatus completes pending snapshots on their first poll.
func (f *Fleet) SnapshotStatus(ctx context.Context, t cloud.Target, snapshotID string) (*cloud.SnapshotRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("snapshot_status", t.InstanceID); err != nil {
		return nil, err
	}
	s, ok := f.snapshots[snapshotID]
	if !ok || s.deleted {
		return nil, &cloud.ProviderError{Provider: f.cfg.Provider, Op: "snapshot_status", Message: "snapshot not found", Err: cloud.ErrNotFound}
	}
	out := s.ref
	if s.ref.Status == models.SnapshotPending {
		s.ref.Status = models.SnapshotCompleted
	}
	return &out, nil
}

func (f *Fleet) DeleteSnapshot(ctx context.Context, t cloud.Target, snapshotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("delete_snapshot", t.InstanceID); err != nil {
		return err
	}
	s, ok := f.snapshots[snapshotID]
	if !ok {
		// Snapshots created outside this fleet are treated as already gone.
		f.snapshots[snapshotID] = &snapshot{ref: cloud.SnapshotRef{SnapshotID: snapshotID}, deleted: true}
		return nil
	}
	s.deleted = true
	return nil
}

func (f *Fleet) GetMetrics(ctx context.Context, t cloud.Target, window time.Duration) ([]*models.MetricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, err := f.lookup("get_metrics", t.InstanceID)
	if err != nil {
		return nil, err
	}

	now := f.now()
	if inst.pinned != nil {
		s := *inst.pinned
		s.InstanceID = inst.InstanceID
		s.Provider = f.cfg.Provider
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		return []*models.MetricSample{&s}, nil
	}
	if inst.State != models.VMStateRunning {
		return nil, nil
	}

	if window <= 0 {
		window = sampleInterval
	}
	var out []*models.MetricSample
	for at := now.Add(-window).Add(sampleInterval); !at.After(now); at = at.Add(sampleInterval) {
		cpu := f.noisy(f.pattern.Apply(inst.cpu, at))
		out = append(out, &models.MetricSample{
			InstanceID:        inst.InstanceID,
			Provider:          f.cfg.Provider,
			Timestamp:         at,
			CPUUtilization:    models.Float(cpu),
			MemoryUtilization: models.Float(f.noisy(f.cfg.BaseMemory + (cpu-inst.cpu)*0.3)),
			DiskUtilization:   models.Float(f.noisy(f.cfg.BaseDisk)),
			NetworkIn:         models.Float(cpu * 1024 * 1024),
			NetworkOut:        models.Float(cpu * 512 * 1024),
		})
	}
	return out, nil
}

func (f *Fleet) noisy(base float64) float64 {
	return clamp(base+(f.rng.Float64()*2-1)*f.cfg.Variance, 0, 100)
}
