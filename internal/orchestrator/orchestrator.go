// Package orchestrator wires the monitoring core together and drives it on
// fixed-interval jobs.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/alerting"
	"github.com/OldStager01/cloud-vm-monitor/internal/anomaly"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/cost"
	"github.com/OldStager01/cloud-vm-monitor/internal/evaluator"
	"github.com/OldStager01/cloud-vm-monitor/internal/events"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/monitor"
	"github.com/OldStager01/cloud-vm-monitor/internal/snapshot"
	"github.com/OldStager01/cloud-vm-monitor/internal/statesync"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/config"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type Stores struct {
	VMs       store.VMStore
	Samples   store.MetricStore
	Alerts    store.AlertStore
	Snapshots store.SnapshotStore
	Users     store.UserStore
	Costs     store.CostStore
	JobRuns   store.JobRunStore
	// SamplesExpire is set when the metric store expires old samples itself.
	SamplesExpire bool
}

type Orchestrator struct {
	config      *config.Config
	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	publisher   *events.Publisher
	sink        *alerting.Sink
	snapshots   *snapshot.Engine
	stateSync   *statesync.Syncer
	scheduler   *Scheduler
}

func New(cfg *config.Config, registry *cloud.Registry, stores Stores, notifiers []alerting.Notifier) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cfg.Snapshot.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot location %q: %w", cfg.Snapshot.Location, err)
	}

	eventBus := events.NewEventBus(cfg.Events.BufferSize)
	eventLogger := events.NewEventLogger(stores.JobRuns, eventBus.SubscribeAll())
	publisher := events.NewPublisher(eventBus)

	th := cfg.Monitoring.DefaultThresholds
	defaults := models.AlertThresholds{CPU: th.CPU, Memory: th.Memory, Disk: th.Disk, Cost: th.Cost}

	sink := alerting.NewSink(alerting.Config{
		DedupWindow:   cfg.Alerting.DedupWindow,
		NotifyRetries: cfg.Alerting.NotifyRetries,
		NotifyTimeout: cfg.Alerting.NotifyTimeout,
		NotifyWorkers: cfg.Alerting.NotifyWorkers,
	}, stores.Alerts, stores.Users, notifiers, publisher)

	tracked := make([]models.MetricName, 0, len(cfg.Monitoring.Anomaly.Metrics))
	for _, m := range cfg.Monitoring.Anomaly.Metrics {
		tracked = append(tracked, models.MetricName(m))
	}
	detector := anomaly.New(anomaly.Config{
		Window:     cfg.Monitoring.Anomaly.Window,
		MinSamples: cfg.Monitoring.Anomaly.MinSamples,
		ZThreshold: cfg.Monitoring.Anomaly.ZThreshold,
		Metrics:    tracked,
	}, stores.Samples, stores.VMs, sink, publisher)

	eval := evaluator.New(evaluator.Config{Defaults: defaults, CriticalLevel: th.Critical}, sink)

	poller := monitor.NewPoller(monitor.Config{
		Window:            cfg.Monitoring.MetricWindow,
		DefaultThresholds: defaults,
	}, registry, stores.VMs, stores.Samples, stores.Users, eval, detector, publisher)

	engine := snapshot.NewEngine(snapshot.Config{
		DefaultRetentionDays: cfg.Snapshot.DefaultRetentionDays,
		Location:             loc,
		AlertOnFailure:       cfg.Snapshot.AlertOnFailure,
	}, registry, stores.VMs, stores.Snapshots, sink, publisher)

	scheduler := NewScheduler(SchedulerConfig{
		RunOnStart:   cfg.Scheduler.RunOnStart,
		Workers:      cfg.Scheduler.Workers,
		JobTimeout:   cfg.Scheduler.JobTimeout,
		DrainTimeout: cfg.Scheduler.DrainTimeout,
	}, publisher)

	syncer := statesync.New(registry, stores.VMs, sink, publisher)

	jobs := StandardJobs(Components{
		VMs:           stores.VMs,
		Samples:       stores.Samples,
		Poller:        poller,
		Snapshots:     engine,
		StateSync:     syncer,
		Costs:         cost.NewChecker(cost.Config{DefaultThresholds: defaults}, stores.Users, stores.Costs, sink),
		SkipRetention: stores.SamplesExpire,
	}, Intervals{
		MetricPoll:      cfg.Scheduler.MetricPoll,
		SnapshotCreate:  cfg.Scheduler.SnapshotCreate,
		SnapshotCleanup: cfg.Scheduler.SnapshotCleanup,
		CostCheck:       cfg.Scheduler.CostCheck,
		StateSync:       cfg.Scheduler.StateSync,
		MetricRetention: cfg.Scheduler.MetricRetention,
	})
	for _, job := range jobs {
		if err := scheduler.Register(job); err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		config:      cfg,
		eventBus:    eventBus,
		eventLogger: eventLogger,
		publisher:   publisher,
		sink:        sink,
		snapshots:   engine,
		stateSync:   syncer,
		scheduler:   scheduler,
	}, nil
}

// Start begins event logging. Scheduled jobs only run when withJobs is set,
// so one-shot commands can reuse the wiring.
func (o *Orchestrator) Start(withJobs bool) error {
	logger.Info("Orchestrator starting")
	o.eventLogger.Start()
	if withJobs {
		return o.scheduler.Start()
	}
	return nil
}

func (o *Orchestrator) Stop() {
	logger.Info("Orchestrator stopping")

	o.scheduler.Stop()
	o.sink.Wait()
	o.eventLogger.Stop()
	o.eventBus.Close()

	logger.Info("Orchestrator stopped")
}

func (o *Orchestrator) RunNow(ctx context.Context, job string) (*models.JobRun, error) {
	return o.scheduler.RunNow(ctx, job)
}

func (o *Orchestrator) Jobs() []string {
	return o.scheduler.Jobs()
}

func (o *Orchestrator) Alerts() *alerting.Sink {
	return o.sink
}

func (o *Orchestrator) Snapshots() *snapshot.Engine {
	return o.snapshots
}

func (o *Orchestrator) Power() *statesync.Syncer {
	return o.stateSync
}

func (o *Orchestrator) SubscribeEvents(eventTypes ...models.EventType) <-chan *models.Event {
	return o.eventBus.Subscribe(eventTypes...)
}

func (o *Orchestrator) SubscribeAllEvents() <-chan *models.Event {
	return o.eventBus.SubscribeAll()
}
