package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func newTestFleet() *Fleet {
	f := NewFleet(Config{Provider: models.ProviderAWS, Seed: 1, Pattern: "steady"})
	f.AddInstance(cloud.Instance{InstanceID: "i-1", Region: "us-east-1", VolumeIDs: []string{"vol-1", "vol-2"}})
	f.AddInstance(cloud.Instance{InstanceID: "i-2", Region: "eu-west-1"})
	return f
}

func TestFleet_StateTransitions(t *testing.T) {
	f := newTestFleet()
	ctx := context.Background()
	target := cloud.Target{InstanceID: "i-1"}

	state, err := f.GetState(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, models.VMStateRunning, state)

	require.NoError(t, f.Stop(ctx, target))
	state, _ = f.GetState(ctx, target)
	assert.Equal(t, models.VMStateStopped, state)

	f.SetState("i-1", models.VMStateTerminated)
	assert.Error(t, f.Start(ctx, target))

	_, err = f.GetState(ctx, cloud.Target{InstanceID: "missing"})
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestFleet_ListInstancesByRegion(t *testing.T) {
	f := newTestFleet()

	list, err := f.ListInstances(context.Background(), "us-east-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "i-1", list[0].InstanceID)
}

func TestFleet_SnapshotLifecycle(t *testing.T) {
	f := newTestFleet()
	ctx := context.Background()
	target := cloud.Target{InstanceID: "i-1"}

	ref, err := f.CreateSnapshot(ctx, target, "vol-1", "daily", "")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotPending, ref.Status)
	assert.True(t, f.SnapshotExists(ref.SnapshotID))

	status, err := f.SnapshotStatus(ctx, target, ref.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotPending, status.Status)

	status, err = f.SnapshotStatus(ctx, target, ref.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotCompleted, status.Status)

	require.NoError(t, f.DeleteSnapshot(ctx, target, ref.SnapshotID))
	assert.False(t, f.SnapshotExists(ref.SnapshotID))
}

func TestFleet_FailureInjection(t *testing.T) {
	f := newTestFleet()
	ctx := context.Background()
	boom := errors.New("throttled")

	f.Fail("get_state", "i-1", boom)

	_, err := f.GetState(ctx, cloud.Target{InstanceID: "i-1"})
	var pe *cloud.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "get_state", pe.Op)
	assert.ErrorIs(t, err, boom)

	_, err = f.GetState(ctx, cloud.Target{InstanceID: "i-2"})
	assert.NoError(t, err)

	f.Fail("get_state", "", boom)
	_, err = f.GetState(ctx, cloud.Target{InstanceID: "i-2"})
	assert.Error(t, err)

	f.ClearFailures()
	_, err = f.GetState(ctx, cloud.Target{InstanceID: "i-2"})
	assert.NoError(t, err)
	assert.Equal(t, 4, f.Calls("get_state"))
}

func TestFleet_GetMetrics(t *testing.T) {
	f := newTestFleet()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.SetClock(func() time.Time { return now })
	ctx := context.Background()

	samples, err := f.GetMetrics(ctx, cloud.Target{InstanceID: "i-1"}, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	for _, s := range samples {
		require.NotNil(t, s.CPUUtilization)
		assert.GreaterOrEqual(t, *s.CPUUtilization, 0.0)
		assert.LessOrEqual(t, *s.CPUUtilization, 100.0)
	}
	assert.True(t, samples[1].Timestamp.Equal(now))

	f.PinMetrics("i-1", models.MetricSample{CPUUtilization: models.Float(92.5)})
	samples, err = f.GetMetrics(ctx, cloud.Target{InstanceID: "i-1"}, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 92.5, *samples[0].CPUUtilization)
	assert.Nil(t, samples[0].MemoryUtilization)
}

func TestPatterns(t *testing.T) {
	peak := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)    // Wednesday
	night := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)    // Wednesday
	weekend := time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC) // Saturday

	tests := []struct {
		name    string
		pattern Pattern
		at      time.Time
		want    float64
	}{
		{"steady", SteadyPattern{}, peak, 50},
		{"daily peak", DailyPattern{}, peak, 70},
		{"daily night", DailyPattern{}, night, 30},
		{"weekly weekend", WeeklyPattern{}, weekend, 25},
		{"gradual rise caps at 50%", GradualRisePattern{Start: peak.Add(-time.Hour)}, peak, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.pattern.Apply(50, tt.at), 0.001)
		})
	}
}
