package gcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := New(context.Background(), Config{
		ProjectID:     "proj",
		ComputeURL:    srv.URL + "/compute/v1",
		MonitoringURL: srv.URL + "/v3",
		Token:         func(ctx context.Context) (string, error) { return "tok", nil },
	})
	require.NoError(t, err)
	return a
}

var target = cloud.Target{InstanceID: "web-1", Zone: "us-central1-a"}

func TestNew_NotConfigured(t *testing.T) {
	_, err := New(context.Background(), Config{ProjectID: "proj"})
	assert.ErrorIs(t, err, cloud.ErrNotConfigured)
}

func TestMapStatus(t *testing.T) {
	tests := map[string]models.VMState{
		"RUNNING":      models.VMStateRunning,
		"TERMINATED":   models.VMStateStopped,
		"SUSPENDED":    models.VMStateStopped,
		"STAGING":      models.VMStatePending,
		"PROVISIONING": models.VMStatePending,
		"STOPPING":     models.VMStateStopping,
		"REPAIRING":    models.VMStateUnknown,
	}
	for status, want := range tests {
		assert.Equal(t, want, mapStatus(status), status)
	}
}

func TestRegionOf(t *testing.T) {
	assert.Equal(t, "us-central1", regionOf("us-central1-a"))
	assert.Equal(t, "europe-west4", regionOf("europe-west4-b"))
}

func TestAdapter_GetState(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compute/v1/projects/proj/zones/us-central1-a/instances/web-1", r.URL.Path)
		w.Write([]byte(`{"name":"web-1","status":"TERMINATED"}`))
	})

	state, err := a.GetState(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, models.VMStateStopped, state)
}

func TestAdapter_Reboot_UsesReset(t *testing.T) {
	var path string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"status":"RUNNING"}`))
	})

	require.NoError(t, a.Reboot(context.Background(), target))
	assert.True(t, strings.HasSuffix(path, "/instances/web-1/reset"))
}

func TestAdapter_ListInstances(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compute/v1/projects/proj/aggregated/instances", r.URL.Path)
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"items":{"zones/us-central1-a":{"instances":[{
				"name":"web-1","status":"RUNNING",
				"zone":"https://x/zones/us-central1-a",
				"machineType":"https://x/machineTypes/e2-medium",
				"disks":[{"source":"https://x/zones/us-central1-a/disks/web-1-boot"}]}]}},
				"nextPageToken":"p2"}`))
			return
		}
		w.Write([]byte(`{"items":{"zones/europe-west4-b":{"instances":[{"name":"db-1","status":"RUNNING","zone":"https://x/zones/europe-west4-b"}]}}}`))
	})

	got, err := a.ListInstances(context.Background(), "us-central1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e2-medium", got[0].InstanceType)
	assert.Equal(t, "us-central1-a", got[0].Zone)
	assert.Equal(t, []string{"web-1-boot"}, got[0].VolumeIDs)
}

func TestAdapter_Snapshots(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			assert.Equal(t, "/compute/v1/projects/proj/zones/us-central1-a/disks/web-1-boot/createSnapshot", r.URL.Path)
			w.Write([]byte(`{"status":"RUNNING"}`))
		case r.Method == http.MethodGet:
			assert.Equal(t, "/compute/v1/projects/proj/global/snapshots/web-1-snap", r.URL.Path)
			w.Write([]byte(`{"status":"READY","diskSizeGb":"10","sourceDisk":"https://x/disks/web-1-boot"}`))
		default:
			w.Write([]byte(`{}`))
		}
	})
	ctx := context.Background()

	ref, err := a.CreateSnapshot(ctx, target, "web-1-boot", "web-1-snap", "Automated snapshot")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotPending, ref.Status)
	assert.Equal(t, "web-1-snap", ref.SnapshotID)

	ref, err = a.SnapshotStatus(ctx, target, "web-1-snap")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotCompleted, ref.Status)
	assert.Equal(t, 10, *ref.SizeGB)
	assert.Equal(t, "web-1-boot", ref.VolumeID)

	assert.NoError(t, a.DeleteSnapshot(ctx, target, "web-1-snap"))
}

func TestAdapter_GetMetrics_ScalesCPU(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/projects/proj/timeSeries", r.URL.Path)
		filter := r.URL.Query().Get("filter")
		assert.Contains(t, filter, `metric.labels.instance_name = "web-1"`)
		switch {
		case strings.Contains(filter, "cpu/utilization"):
			w.Write([]byte(`{"timeSeries":[{"points":[{"interval":{"endTime":"2024-05-01T12:00:00Z"},"value":{"doubleValue":0.925}}]}]}`))
		case strings.Contains(filter, "received_bytes_count"):
			w.Write([]byte(`{"timeSeries":[{"points":[{"interval":{"endTime":"2024-05-01T12:00:00Z"},"value":{"int64Value":"4096"}}]}]}`))
		default:
			w.Write([]byte(`{}`))
		}
	})

	samples, err := a.GetMetrics(context.Background(), target, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.InDelta(t, 92.5, *samples[0].CPUUtilization, 1e-9)
	assert.Equal(t, 4096.0, *samples[0].NetworkIn)
	assert.Nil(t, samples[0].NetworkOut)
}
