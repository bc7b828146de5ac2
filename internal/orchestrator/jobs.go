package orchestrator

import (
	"context"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/cost"
	"github.com/OldStager01/cloud-vm-monitor/internal/monitor"
	"github.com/OldStager01/cloud-vm-monitor/internal/snapshot"
	"github.com/OldStager01/cloud-vm-monitor/internal/statesync"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const (
	JobMetricPoll      = "metric_poll"
	JobSnapshotCreate  = "snapshot_create"
	JobSnapshotCleanup = "snapshot_cleanup"
	JobCostCheck       = "cost_check"
	JobStateSync       = "state_sync"
	JobMetricRetention = "metric_retention"
)

type Intervals struct {
	MetricPoll      time.Duration
	SnapshotCreate  time.Duration
	SnapshotCleanup time.Duration
	CostCheck       time.Duration
	StateSync       time.Duration
	MetricRetention time.Duration
}

func (iv Intervals) withDefaults() Intervals {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&iv.MetricPoll, 5*time.Minute)
	def(&iv.SnapshotCreate, 60*time.Minute)
	def(&iv.SnapshotCleanup, 24*time.Hour)
	def(&iv.CostCheck, 24*time.Hour)
	def(&iv.StateSync, 10*time.Minute)
	def(&iv.MetricRetention, 24*time.Hour)
	return iv
}

// Components are the services the standard jobs drive. A nil component
// drops its job.
type Components struct {
	VMs       store.VMStore
	Samples   store.MetricStore
	Poller    *monitor.Poller
	Snapshots *snapshot.Engine
	StateSync *statesync.Syncer
	Costs     *cost.Checker
	// SkipRetention leaves sample expiry to the store, as the Mongo TTL index does.
	SkipRetention bool
	Now           func() time.Time
}

func StandardJobs(c Components, iv Intervals) []Job {
	iv = iv.withDefaults()
	if c.Now == nil {
		c.Now = time.Now
	}
	listActive := func(ctx context.Context) ([]*models.VM, error) {
		return c.VMs.ListActive(ctx)
	}

	var jobs []Job
	if c.Poller != nil {
		jobs = append(jobs, Job{
			Name:     JobMetricPoll,
			Interval: iv.MetricPoll,
			List:     listActive,
			Each:     c.Poller.PollVM,
		})
	}
	if c.StateSync != nil {
		jobs = append(jobs, Job{
			Name:     JobStateSync,
			Interval: iv.StateSync,
			List:     listActive,
			Each:     c.StateSync.SyncVM,
		})
	}
	if c.Snapshots != nil {
		jobs = append(jobs,
			Job{
				Name:     JobSnapshotCreate,
				Interval: iv.SnapshotCreate,
				Before: func(ctx context.Context) (Counts, error) {
					res, err := c.Snapshots.SyncPending(ctx)
					return Counts(res), err
				},
				List: c.Snapshots.Candidates,
				Each: c.Snapshots.SnapshotVM,
			},
			Job{
				Name:     JobSnapshotCleanup,
				Interval: iv.SnapshotCleanup,
				Run: func(ctx context.Context) (Counts, error) {
					res, err := c.Snapshots.ExpireAndClean(ctx)
					return Counts(res), err
				},
			},
		)
	}
	if c.Costs != nil {
		jobs = append(jobs, Job{
			Name:     JobCostCheck,
			Interval: iv.CostCheck,
			Run: func(ctx context.Context) (Counts, error) {
				processed, failed, err := c.Costs.CheckAll(ctx)
				return Counts{Processed: processed, Failed: failed}, err
			},
		})
	}
	if c.Samples != nil && !c.SkipRetention {
		jobs = append(jobs, Job{
			Name:     JobMetricRetention,
			Interval: iv.MetricRetention,
			Run: func(ctx context.Context) (Counts, error) {
				n, err := monitor.PurgeOld(ctx, c.Samples, c.Now(), models.MetricRetention)
				return Counts{Processed: int(n)}, err
			},
		})
	}
	return jobs
}
