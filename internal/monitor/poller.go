// Package monitor polls provider metrics for one VM at a time and feeds them
// to the threshold evaluator and the anomaly detector.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/anomaly"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/evaluator"
	"github.com/OldStager01/cloud-vm-monitor/internal/events"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type Config struct {
	// Window is how far back each poll asks the provider for datapoints.
	Window            time.Duration
	DefaultThresholds models.AlertThresholds
}

type Poller struct {
	config    Config
	registry  *cloud.Registry
	vms       store.VMStore
	samples   store.MetricStore
	users     store.UserStore
	evaluator *evaluator.Evaluator
	detector  *anomaly.Detector
	publisher *events.Publisher
}

func NewPoller(
	cfg Config,
	registry *cloud.Registry,
	vms store.VMStore,
	samples store.MetricStore,
	users store.UserStore,
	eval *evaluator.Evaluator,
	detector *anomaly.Detector,
	publisher *events.Publisher,
) *Poller {
	if cfg.Window == 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.DefaultThresholds == (models.AlertThresholds{}) {
		cfg.DefaultThresholds = models.DefaultAlertThresholds()
	}
	return &Poller{
		config:    cfg,
		registry:  registry,
		vms:       vms,
		samples:   samples,
		users:     users,
		evaluator: eval,
		detector:  detector,
		publisher: publisher,
	}
}

// PollVM fetches the latest datapoints for vm, stores them and evaluates
// them. VMs whose provider has no credentials are skipped without error.
func (p *Poller) PollVM(ctx context.Context, vm *models.VM) error {
	log := logger.WithVM(vm.ID)

	adapter, err := p.registry.For(vm.Provider)
	if errors.Is(err, cloud.ErrNotConfigured) {
		log.Debugf("Skipping metric poll, %s is not configured", vm.Provider)
		return nil
	}
	if err != nil {
		return err
	}

	window, err := adapter.GetMetrics(ctx, cloud.TargetOf(vm), p.config.Window)
	metrics.Get().IncMetricPoll(string(vm.Provider), err == nil)
	if err != nil {
		p.publisher.Error(vm, "Metric poll failed", err)
		return fmt.Errorf("failed to fetch metrics for %s: %w", vm.Name, err)
	}

	sample := cloud.Latest(window)
	if sample == nil {
		log.Debug("Provider returned no datapoints")
		return nil
	}
	sample.VMID = vm.ID
	sample.InstanceID = vm.InstanceID
	sample.Provider = vm.Provider

	if err := p.vms.UpdateMetrics(ctx, vm.ID, sample.Summary()); err != nil {
		log.WithError(err).Error("Failed to update VM metrics")
		return store.WrapWrite("update", "vm_metrics", vm.ID, err)
	}
	if err := p.samples.Append(ctx, sample); err != nil {
		log.WithError(err).Error("Failed to append metric sample")
		return store.WrapWrite("append", "metric_sample", vm.ID, err)
	}

	metrics.Get().SetVMUtilization(vm.ID, string(vm.Provider), sample.CPUUtilization, sample.MemoryUtilization)
	p.publisher.MetricsCollected(vm, sample)

	var errs []error
	if _, err := p.evaluator.Evaluate(ctx, vm, sample, p.thresholds(ctx, vm)); err != nil {
		errs = append(errs, err)
	}
	if p.detector != nil {
		if _, err := p.detector.DetectSample(ctx, vm, sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// thresholds returns the owner's cutoffs, or the defaults when the owner
// cannot be loaded.
func (p *Poller) thresholds(ctx context.Context, vm *models.VM) models.AlertThresholds {
	user, err := p.users.Get(ctx, vm.UserID)
	if err != nil {
		logger.WithVM(vm.ID).WithError(err).Warn("Owner lookup failed, using default thresholds")
		return p.config.DefaultThresholds
	}
	return user.Preferences.AlertThresholds.WithDefaults(p.config.DefaultThresholds)
}

// PurgeOld deletes samples older than retention and returns how many were removed.
func PurgeOld(ctx context.Context, samples store.MetricStore, now time.Time, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = models.MetricRetention
	}
	n, err := samples.PurgeBefore(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge metric samples: %w", err)
	}
	if n > 0 {
		logger.Infof("Purged %d metric samples older than %s", n, retention)
	}
	return n, nil
}
