package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/store/memory"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type recordingRequester struct {
	requested []*models.Alert
}

func (r *recordingRequester) Request(ctx context.Context, candidate *models.Alert) (bool, error) {
	r.requested = append(r.requested, candidate)
	return true, nil
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	detector *Detector
	samples  *memory.MetricStore
	vms      *memory.VMStore
	req      *recordingRequester
	vm       *models.VM
}

func newFixture(t *testing.T, cpuHistory ...float64) *fixture {
	t.Helper()
	vm := &models.VM{ID: "vm-1", UserID: "u1", Name: "web", IsActive: true}
	f := &fixture{
		samples: memory.NewMetricStore(),
		vms:     memory.NewVMStore(vm),
		req:     &recordingRequester{},
		vm:      vm,
	}
	f.detector = New(Config{}, f.samples, f.vms, f.req, nil)

	for i, v := range cpuHistory {
		require.NoError(t, f.samples.Append(context.Background(), &models.MetricSample{
			VMID:           vm.ID,
			Timestamp:      now.Add(-time.Duration(len(cpuHistory)-i) * 5 * time.Minute),
			CPUUtilization: models.Float(v),
		}))
	}
	return f
}

// mean 50, population stddev 5
var history = []float64{45, 55, 45, 55, 45, 55, 45, 55, 45, 55}

func TestCompute(t *testing.T) {
	s := Compute(history)
	assert.Equal(t, 10, s.N)
	assert.InDelta(t, 50.0, s.Mean, 1e-9)
	assert.InDelta(t, 5.0, s.StdDev, 1e-9)

	_, ok := Compute([]float64{7, 7, 7}).ZScore(9)
	assert.False(t, ok)
	assert.Equal(t, Stats{}, Compute(nil))
}

func TestDetect_Trigger(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		anomalous bool
		z         float64
	}{
		{"z 3.2 is anomalous", 66, true, 3.2},
		{"z 2.8 is not", 64, false, 2.8},
		{"low side is symmetric", 34, true, 3.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, history...)

			r, err := f.detector.Detect(context.Background(), f.vm, models.MetricCPU, tt.current, now)
			require.NoError(t, err)
			require.NotNil(t, r)
			assert.InDelta(t, tt.z, r.ZScore, 1e-9)
			assert.Equal(t, tt.anomalous, r.Anomalous)

			vm, err := f.vms.Get(context.Background(), f.vm.ID)
			require.NoError(t, err)
			if !tt.anomalous {
				assert.Empty(t, f.req.requested)
				assert.Empty(t, vm.Anomalies)
				return
			}

			require.Len(t, f.req.requested, 1)
			alert := f.req.requested[0]
			assert.Equal(t, models.AlertAnomalyDetected, alert.AlertType)
			assert.Equal(t, models.SeverityMedium, alert.Severity)
			assert.Equal(t, "CPU anomaly detected on web", alert.Title)
			assert.Equal(t, "cpu", alert.Metadata["metric"])
			assert.InDelta(t, 50.0, alert.Metadata["mean"].(float64), 1e-9)
			assert.InDelta(t, 5.0, alert.Metadata["stddev"].(float64), 1e-9)
			assert.InDelta(t, 3.2, alert.Metadata["zScore"].(float64), 1e-9)

			require.Len(t, vm.Anomalies, 1)
			assert.Equal(t, models.AnomalyCPUSpike, vm.Anomalies[0].Type)
			assert.False(t, vm.Anomalies[0].Resolved)
		})
	}
}

func TestDetect_SampleFloor(t *testing.T) {
	f := newFixture(t, history[:9]...)

	r, err := f.detector.Detect(context.Background(), f.vm, models.MetricCPU, 1000, now)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, f.req.requested)
}

func TestDetect_FlatHistoryIsNotAnomalous(t *testing.T) {
	f := newFixture(t, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20)

	r, err := f.detector.Detect(context.Background(), f.vm, models.MetricCPU, 99, now)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.Anomalous)
	assert.Empty(t, f.req.requested)
}

func TestDetect_IgnoresSamplesOutsideWindow(t *testing.T) {
	f := newFixture(t, history...)
	require.NoError(t, f.samples.Append(context.Background(), &models.MetricSample{
		VMID: f.vm.ID, Timestamp: now, CPUUtilization: models.Float(66),
	}))
	require.NoError(t, f.samples.Append(context.Background(), &models.MetricSample{
		VMID: f.vm.ID, Timestamp: now.Add(-25 * time.Hour), CPUUtilization: models.Float(500),
	}))

	r, err := f.detector.Detect(context.Background(), f.vm, models.MetricCPU, 66, now)
	require.NoError(t, err)
	assert.Equal(t, 10, r.Stats.N)
	assert.True(t, r.Anomalous)
}

func TestDetectSample_OnlyTrackedAndReported(t *testing.T) {
	f := newFixture(t, history...)

	results, err := f.detector.DetectSample(context.Background(), f.vm, &models.MetricSample{
		Timestamp:         now,
		MemoryUtilization: models.Float(99),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTypeFor(t *testing.T) {
	assert.Equal(t, models.AnomalyCPUSpike, TypeFor(models.MetricCPU))
	assert.Equal(t, models.AnomalyMemoryLeak, TypeFor(models.MetricMemory))
	assert.Equal(t, models.AnomalyUnusualTraffic, TypeFor(models.MetricNetworkIn))
	assert.Equal(t, models.AnomalyPerformanceDegradation, TypeFor(models.MetricDisk))
}
