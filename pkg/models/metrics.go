package models

import "time"

// MetricRetention is how long samples are kept before they are purged.
const MetricRetention = 30 * 24 * time.Hour

type MetricName string

const (
	MetricCPU        MetricName = "cpu"
	MetricMemory     MetricName = "memory"
	MetricDisk       MetricName = "disk"
	MetricNetworkIn  MetricName = "network_in"
	MetricNetworkOut MetricName = "network_out"
)

// MetricSample is one timestamped observation for a VM. Nil fields were not
// reported by the provider and must not be read as zero.
type MetricSample struct {
	VMID              string    `json:"vm_id" bson:"vm_id"`
	InstanceID        string    `json:"instance_id" bson:"instance_id"`
	Provider          Provider  `json:"provider" bson:"provider"`
	Timestamp         time.Time `json:"timestamp" bson:"timestamp"`
	CPUUtilization    *float64  `json:"cpu_utilization,omitempty" bson:"cpu_utilization,omitempty"`
	MemoryUtilization *float64  `json:"memory_utilization,omitempty" bson:"memory_utilization,omitempty"`
	DiskUtilization   *float64  `json:"disk_utilization,omitempty" bson:"disk_utilization,omitempty"`
	NetworkIn         *float64  `json:"network_in,omitempty" bson:"network_in,omitempty"`
	NetworkOut        *float64  `json:"network_out,omitempty" bson:"network_out,omitempty"`
	DiskReadBytes     *float64  `json:"disk_read_bytes,omitempty" bson:"disk_read_bytes,omitempty"`
	DiskWriteBytes    *float64  `json:"disk_write_bytes,omitempty" bson:"disk_write_bytes,omitempty"`
}

// Value returns the sample's value for the named metric and whether it was reported.
func (s *MetricSample) Value(name MetricName) (float64, bool) {
	var v *float64
	switch name {
	case MetricCPU:
		v = s.CPUUtilization
	case MetricMemory:
		v = s.MemoryUtilization
	case MetricDisk:
		v = s.DiskUtilization
	case MetricNetworkIn:
		v = s.NetworkIn
	case MetricNetworkOut:
		v = s.NetworkOut
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (s *MetricSample) Summary() MetricSummary {
	ts := s.Timestamp
	return MetricSummary{
		CPUUtilization:    s.CPUUtilization,
		MemoryUtilization: s.MemoryUtilization,
		DiskUtilization:   s.DiskUtilization,
		NetworkIn:         s.NetworkIn,
		NetworkOut:        s.NetworkOut,
		LastUpdated:       &ts,
	}
}
