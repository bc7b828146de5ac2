package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestVMStore_ListSnapshotCandidates(t *testing.T) {
	past := base.Add(-time.Minute)
	future := base.Add(time.Hour)

	due := models.NewVM("u1", models.ProviderAWS, "i-1", "due", "us-east-1")
	due.SnapshotConfig.NextSnapshotTime = &past

	unset := models.NewVM("u1", models.ProviderAWS, "i-2", "unset", "us-east-1")

	notYet := models.NewVM("u1", models.ProviderAWS, "i-3", "later", "us-east-1")
	notYet.SnapshotConfig.NextSnapshotTime = &future

	disabled := models.NewVM("u1", models.ProviderAWS, "i-4", "off", "us-east-1")
	disabled.SnapshotConfig.Enabled = false

	inactive := models.NewVM("u1", models.ProviderAWS, "i-5", "gone", "us-east-1")
	inactive.IsActive = false

	s := NewVMStore(due, unset, notYet, disabled, inactive)

	vms, err := s.ListSnapshotCandidates(context.Background(), base)
	require.NoError(t, err)

	var names []string
	for _, vm := range vms {
		names = append(names, vm.Name)
	}
	assert.ElementsMatch(t, []string{"due", "unset"}, names)
}

func TestVMStore_ReturnsCopies(t *testing.T) {
	vm := models.NewVM("u1", models.ProviderGCP, "i-1", "web", "us-central1")
	s := NewVMStore(vm)

	got, err := s.Get(context.Background(), vm.ID)
	require.NoError(t, err)
	got.State = models.VMStateTerminated

	again, err := s.Get(context.Background(), vm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VMStateUnknown, again.State)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateState(context.Background(), "missing", models.VMStateRunning), store.ErrNotFound)
}

func TestMetricStore_QueryAndPurge(t *testing.T) {
	s := NewMetricStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &models.MetricSample{
			VMID:           "vm-1",
			Timestamp:      base.Add(time.Duration(-i) * time.Hour),
			CPUUtilization: models.Float(float64(i)),
		}))
	}

	samples, err := s.Query(ctx, "vm-1", base.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.True(t, samples[0].Timestamp.Before(samples[2].Timestamp))

	purged, err := s.PurgeBefore(ctx, base.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	all, err := s.Query(ctx, "vm-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestAlertStore_FindActiveRecent(t *testing.T) {
	s := NewAlertStore()
	ctx := context.Background()

	key := models.DedupKey{UserID: "u1", VMID: "vm-1", AlertType: models.AlertCPUHigh}
	old := &models.Alert{ID: "a1", UserID: "u1", VMID: "vm-1", AlertType: models.AlertCPUHigh,
		Status: models.AlertStatusActive, CreatedAt: base.Add(-2 * time.Hour)}
	acked := &models.Alert{ID: "a2", UserID: "u1", VMID: "vm-1", AlertType: models.AlertCPUHigh,
		Status: models.AlertStatusAcknowledged, CreatedAt: base.Add(-10 * time.Minute)}
	require.NoError(t, s.Insert(ctx, old))
	require.NoError(t, s.Insert(ctx, acked))

	found, err := s.FindActiveRecent(ctx, key, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Nil(t, found)

	recent := &models.Alert{ID: "a3", UserID: "u1", VMID: "vm-1", AlertType: models.AlertCPUHigh,
		Status: models.AlertStatusActive, CreatedAt: base.Add(-5 * time.Minute)}
	require.NoError(t, s.Insert(ctx, recent))

	found, err = s.FindActiveRecent(ctx, key, base.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a3", found.ID)
}

func TestAlertStore_InsertErr(t *testing.T) {
	s := NewAlertStore()
	s.InsertErr = errors.New("disk full")

	err := s.Insert(context.Background(), &models.Alert{ID: "a1", UserID: "u1", AlertType: models.AlertCostSpike})

	var perr *store.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "alert", perr.Entity)
	assert.Equal(t, 0, s.Count())
}

func TestSnapshotStore_ExpiredAndStats(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()
	vm := models.NewVM("u1", models.ProviderAWS, "i-1", "web", "us-east-1")

	expired := models.NewSnapshot(vm, "snap-1", "vol-1", models.SnapshotAuto, 30, base.Add(-31*24*time.Hour))
	expired.Status = models.SnapshotCompleted
	size := 8
	expired.SizeGB = &size

	fresh := models.NewSnapshot(vm, "snap-2", "vol-1", models.SnapshotAuto, 30, base.Add(-29*24*time.Hour))
	fresh.Status = models.SnapshotCompleted

	pending := models.NewSnapshot(vm, "snap-3", "vol-1", models.SnapshotManual, 30, base.Add(-40*24*time.Hour))

	for _, snap := range []*models.Snapshot{expired, fresh, pending} {
		require.NoError(t, s.Insert(ctx, snap))
	}
	assert.Error(t, s.Insert(ctx, models.NewSnapshot(vm, "snap-1", "vol-1", models.SnapshotAuto, 30, base)))

	list, err := s.ListExpired(ctx, base)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "snap-1", list[0].SnapshotID)

	pend, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pend, 1)
	assert.Equal(t, "snap-3", pend[0].SnapshotID)

	stats, err := s.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSnapshots)
	assert.Equal(t, 8, stats.TotalSizeGB)
	assert.Equal(t, 2, stats.ByStatus[models.SnapshotCompleted])
	assert.Equal(t, 3, stats.ByProvider[models.ProviderAWS])
}

func TestCostStore_SumBetween(t *testing.T) {
	s := NewCostStore(
		models.CostRecord{UserID: "u1", Amount: 10, PeriodStart: base.AddDate(0, -1, 0)},
		models.CostRecord{UserID: "u1", Amount: 5, PeriodStart: base},
		models.CostRecord{UserID: "u2", Amount: 100, PeriodStart: base},
	)

	total, err := s.SumBetween(context.Background(), "u1", base.AddDate(0, 0, -1), base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 5.0, total)
}

func TestJobRunStore_Recent(t *testing.T) {
	s := NewJobRunStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, &models.JobRun{Job: "metric_poll", Processed: i}))
	}
	require.NoError(t, s.Record(ctx, &models.JobRun{Job: "cost_check"}))

	runs, err := s.Recent(ctx, "metric_poll", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Processed)
	assert.Equal(t, int64(3), runs[0].ID)
}
