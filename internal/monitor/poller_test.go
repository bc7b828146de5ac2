package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/alerting"
	"github.com/OldStager01/cloud-vm-monitor/internal/anomaly"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud/simulated"
	"github.com/OldStager01/cloud-vm-monitor/internal/evaluator"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/internal/store/memory"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	poller  *Poller
	fleet   *simulated.Fleet
	vms     *memory.VMStore
	samples *memory.MetricStore
	alerts  *memory.AlertStore
	vm      *models.VM
}

func newFixture(t *testing.T, thresholds models.AlertThresholds) *fixture {
	t.Helper()
	vm := &models.VM{
		ID: "vm-1", UserID: "u1", Provider: models.ProviderAWS,
		InstanceID: "i-1", Name: "web", Region: "us-east-1",
		State: models.VMStateRunning, IsActive: true,
	}
	user := &models.User{ID: "u1", Preferences: models.Preferences{AlertThresholds: thresholds}, IsActive: true}

	f := &fixture{
		fleet:   simulated.NewFleet(simulated.Config{Seed: 1}),
		vms:     memory.NewVMStore(vm),
		samples: memory.NewMetricStore(),
		alerts:  memory.NewAlertStore(),
		vm:      vm,
	}
	f.fleet.SetClock(func() time.Time { return now })
	f.fleet.AddVM(vm)

	users := memory.NewUserStore(user)
	sink := alerting.NewSink(alerting.Config{Now: func() time.Time { return now }}, f.alerts, users, nil, nil)
	f.poller = NewPoller(Config{},
		cloud.NewRegistry(f.fleet),
		f.vms, f.samples, users,
		evaluator.New(evaluator.Config{}, sink),
		anomaly.New(anomaly.Config{}, f.samples, f.vms, sink, nil),
		nil,
	)
	return f
}

func (f *fixture) alertsOf(t *testing.T) []*models.Alert {
	t.Helper()
	out, err := f.alerts.List(context.Background(), store.AlertFilter{UserID: "u1"})
	require.NoError(t, err)
	return out
}

func TestPollVM_ThresholdScenario(t *testing.T) {
	f := newFixture(t, models.AlertThresholds{CPU: 80})
	f.fleet.PinMetrics("i-1", models.MetricSample{CPUUtilization: models.Float(92.5)})

	require.NoError(t, f.poller.PollVM(context.Background(), f.vm))

	alerts := f.alertsOf(t)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCPUHigh, alerts[0].AlertType)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "92.50%")
	assert.Contains(t, alerts[0].Message, "80%")

	vm, err := f.vms.Get(context.Background(), "vm-1")
	require.NoError(t, err)
	require.NotNil(t, vm.Metrics.CPUUtilization)
	assert.Equal(t, 92.5, *vm.Metrics.CPUUtilization)
	assert.Nil(t, vm.Metrics.MemoryUtilization)
	require.NotNil(t, vm.Metrics.LastUpdated)
	assert.True(t, vm.Metrics.LastUpdated.Equal(now))

	stored, err := f.samples.Query(context.Background(), "vm-1", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "vm-1", stored[0].VMID)
}

func TestPollVM_RepeatedBreachIsDeduplicated(t *testing.T) {
	f := newFixture(t, models.AlertThresholds{CPU: 80})
	f.fleet.PinMetrics("i-1", models.MetricSample{CPUUtilization: models.Float(97)})

	for i := 0; i < 3; i++ {
		require.NoError(t, f.poller.PollVM(context.Background(), f.vm))
	}

	alerts := f.alertsOf(t)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}

func TestPollVM_AnomalyAgainstHistory(t *testing.T) {
	f := newFixture(t, models.AlertThresholds{CPU: 90})
	for i := 0; i < 10; i++ {
		v := 45.0
		if i%2 == 1 {
			v = 55
		}
		require.NoError(t, f.samples.Append(context.Background(), &models.MetricSample{
			VMID: "vm-1", Timestamp: now.Add(-time.Duration(i+1) * 5 * time.Minute), CPUUtilization: models.Float(v),
		}))
	}
	f.fleet.PinMetrics("i-1", models.MetricSample{CPUUtilization: models.Float(66)})

	require.NoError(t, f.poller.PollVM(context.Background(), f.vm))

	alerts := f.alertsOf(t)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertAnomalyDetected, alerts[0].AlertType)

	vm, err := f.vms.Get(context.Background(), "vm-1")
	require.NoError(t, err)
	require.Len(t, vm.Anomalies, 1)
	assert.Equal(t, models.AnomalyCPUSpike, vm.Anomalies[0].Type)
}

func TestPollVM_SkipsUnconfiguredProvider(t *testing.T) {
	f := newFixture(t, models.AlertThresholds{})
	vm := *f.vm
	vm.Provider = models.ProviderGCP

	require.NoError(t, f.poller.PollVM(context.Background(), &vm))
	assert.Zero(t, f.fleet.Calls("get_metrics"))
}

func TestPollVM_ProviderFailure(t *testing.T) {
	f := newFixture(t, models.AlertThresholds{})
	f.fleet.Fail("get_metrics", "i-1", errors.New("throttled"))

	err := f.poller.PollVM(context.Background(), f.vm)
	var pe *cloud.ProviderError
	require.ErrorAs(t, err, &pe)

	stored, err := f.samples.Query(context.Background(), "vm-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, f.alertsOf(t))
}

func TestPurgeOld(t *testing.T) {
	samples := memory.NewMetricStore()
	ctx := context.Background()
	require.NoError(t, samples.Append(ctx, &models.MetricSample{VMID: "vm-1", Timestamp: now.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, samples.Append(ctx, &models.MetricSample{VMID: "vm-1", Timestamp: now.Add(-29 * 24 * time.Hour)}))

	n, err := PurgeOld(ctx, samples, now, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
