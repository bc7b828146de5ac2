// Package cloud defines the provider capability set consumed by the monitoring
// and snapshot core, plus the registry and resilience wrapper around it.
package cloud

import (
	"context"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// Target locates one instance at its provider.
type Target struct {
	InstanceID    string
	Name          string
	Region        string
	Zone          string
	ResourceGroup string
}

func TargetOf(vm *models.VM) Target {
	return Target{
		InstanceID:    vm.InstanceID,
		Name:          vm.Name,
		Region:        vm.Region,
		Zone:          vm.Zone,
		ResourceGroup: vm.ResourceGroup,
	}
}

func TargetOfSnapshot(s *models.Snapshot) Target {
	return Target{
		InstanceID:    s.InstanceID,
		Region:        s.Region,
		Zone:          s.Zone,
		ResourceGroup: s.ResourceGroup,
	}
}

type Instance struct {
	InstanceID    string
	Name          string
	Region        string
	Zone          string
	ResourceGroup string
	InstanceType  string
	State         models.VMState
	VolumeIDs     []string
}

type SnapshotRef struct {
	SnapshotID string
	VolumeID   string
	Status     models.SnapshotStatus
	SizeGB     *int
	Message    string
}

type Adapter interface {
	Provider() models.Provider
	ListInstances(ctx context.Context, region string) ([]Instance, error)
	GetState(ctx context.Context, t Target) (models.VMState, error)
	Start(ctx context.Context, t Target) error
	Stop(ctx context.Context, t Target) error
	Reboot(ctx context.Context, t Target) error
	ListVolumes(ctx context.Context, t Target) ([]string, error)
	CreateSnapshot(ctx context.Context, t Target, volumeID, name, description string) (*SnapshotRef, error)
	SnapshotStatus(ctx context.Context, t Target, snapshotID string) (*SnapshotRef, error)
	DeleteSnapshot(ctx context.Context, t Target, snapshotID string) error
	// GetMetrics returns the provider's datapoints for the trailing window,
	// oldest first. Metrics the provider does not report stay nil.
	GetMetrics(ctx context.Context, t Target, window time.Duration) ([]*models.MetricSample, error)
}

// Latest folds a window of datapoints into one sample holding the most recent
// value of each metric. It returns nil for an empty window.
func Latest(samples []*models.MetricSample) *models.MetricSample {
	if len(samples) == 0 {
		return nil
	}

	sorted := append([]*models.MetricSample(nil), samples...)
	sortByTime(sorted)

	var out models.MetricSample
	pick := func(dst **float64, v *float64) {
		if v != nil {
			c := *v
			*dst = &c
		}
	}
	for _, s := range sorted {
		out.Timestamp = s.Timestamp
		out.InstanceID = s.InstanceID
		out.Provider = s.Provider
		pick(&out.CPUUtilization, s.CPUUtilization)
		pick(&out.MemoryUtilization, s.MemoryUtilization)
		pick(&out.DiskUtilization, s.DiskUtilization)
		pick(&out.NetworkIn, s.NetworkIn)
		pick(&out.NetworkOut, s.NetworkOut)
		pick(&out.DiskReadBytes, s.DiskReadBytes)
		pick(&out.DiskWriteBytes, s.DiskWriteBytes)
	}
	return &out
}

// SampleSet accumulates per-timestamp datapoints from providers that report
// each metric as its own series.
type SampleSet struct {
	instanceID string
	provider   models.Provider
	byTime     map[time.Time]*models.MetricSample
}

func NewSampleSet(provider models.Provider, instanceID string) *SampleSet {
	return &SampleSet{instanceID: instanceID, provider: provider, byTime: make(map[time.Time]*models.MetricSample)}
}

func (s *SampleSet) At(ts time.Time) *models.MetricSample {
	ts = ts.UTC().Truncate(time.Second)
	if sample, ok := s.byTime[ts]; ok {
		return sample
	}
	sample := &models.MetricSample{InstanceID: s.instanceID, Provider: s.provider, Timestamp: ts}
	s.byTime[ts] = sample
	return sample
}

// Samples returns the accumulated samples, oldest first.
func (s *SampleSet) Samples() []*models.MetricSample {
	out := make([]*models.MetricSample, 0, len(s.byTime))
	for _, sample := range s.byTime {
		out = append(out, sample)
	}
	sortByTime(out)
	return out
}
