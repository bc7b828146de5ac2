// Package anomaly flags metric values that are statistical outliers against
// the VM's own trailing history.
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/events"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type Requester interface {
	Request(ctx context.Context, candidate *models.Alert) (bool, error)
}

type Config struct {
	Window     time.Duration
	MinSamples int
	ZThreshold float64
	Metrics    []models.MetricName
}

type Detector struct {
	config    Config
	samples   store.MetricStore
	vms       store.VMStore
	requester Requester
	publisher *events.Publisher
}

func New(cfg Config, samples store.MetricStore, vms store.VMStore, requester Requester, publisher *events.Publisher) *Detector {
	if cfg.Window == 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 10
	}
	if cfg.ZThreshold == 0 {
		cfg.ZThreshold = 3.0
	}
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = []models.MetricName{models.MetricCPU}
	}
	return &Detector{
		config:    cfg,
		samples:   samples,
		vms:       vms,
		requester: requester,
		publisher: publisher,
	}
}

// Result describes one evaluated metric. A nil *Result from Detect means the
// history was too short to judge.
type Result struct {
	Metric    models.MetricName
	Current   float64
	Stats     Stats
	ZScore    float64
	Anomalous bool
}

// Detect scores current against the samples in the window ending at at. The
// window excludes at itself, so a sample already appended for this poll does
// not dilute its own score. A flat history (stddev 0) is never anomalous.
func (d *Detector) Detect(ctx context.Context, vm *models.VM, metric models.MetricName, current float64, at time.Time) (*Result, error) {
	history, err := d.samples.Query(ctx, vm.ID, at.Add(-d.config.Window))
	if err != nil {
		return nil, fmt.Errorf("failed to query metric history: %w", err)
	}

	values := make([]float64, 0, len(history))
	for _, s := range history {
		if !s.Timestamp.Before(at) {
			continue
		}
		if v, ok := s.Value(metric); ok {
			values = append(values, v)
		}
	}
	if len(values) < d.config.MinSamples {
		logger.WithVM(vm.ID).Debugf("Anomaly check skipped for %s: %d samples", metric, len(values))
		return nil, nil
	}

	stats := Compute(values)
	result := &Result{Metric: metric, Current: current, Stats: stats}

	z, ok := stats.ZScore(current)
	if !ok {
		return result, nil
	}
	result.ZScore = z
	if z <= d.config.ZThreshold {
		return result, nil
	}
	result.Anomalous = true

	if err := d.report(ctx, vm, result, at); err != nil {
		return result, err
	}
	return result, nil
}

// DetectSample runs Detect for every tracked metric the sample reports.
func (d *Detector) DetectSample(ctx context.Context, vm *models.VM, sample *models.MetricSample) ([]*Result, error) {
	if sample == nil {
		return nil, nil
	}
	var out []*Result
	for _, metric := range d.config.Metrics {
		current, ok := sample.Value(metric)
		if !ok {
			continue
		}
		result, err := d.Detect(ctx, vm, metric, current, sample.Timestamp)
		if err != nil {
			return out, err
		}
		if result != nil {
			out = append(out, result)
		}
	}
	return out, nil
}

func (d *Detector) report(ctx context.Context, vm *models.VM, r *Result, at time.Time) error {
	label, unit := describe(r.Metric)

	candidate := &models.Alert{
		UserID:    vm.UserID,
		VMID:      vm.ID,
		AlertType: models.AlertAnomalyDetected,
		Severity:  models.SeverityMedium,
		Title:     fmt.Sprintf("%s anomaly detected on %s", label, vm.Name),
		Message: fmt.Sprintf("%s usage (%.2f%s) is significantly different from normal behavior (mean: %.2f%s)",
			label, r.Current, unit, r.Stats.Mean, unit),
		Metadata: map[string]interface{}{
			"metric":       string(r.Metric),
			"currentValue": r.Current,
			"mean":         r.Stats.Mean,
			"stddev":       r.Stats.StdDev,
			"zScore":       r.ZScore,
		},
	}
	if _, err := d.requester.Request(ctx, candidate); err != nil {
		return fmt.Errorf("failed to request anomaly alert: %w", err)
	}

	anomaly := models.Anomaly{
		Type:        TypeFor(r.Metric),
		Severity:    models.SeverityMedium,
		Description: fmt.Sprintf("Unusual %s deviation detected (z=%.2f)", label, r.ZScore),
		DetectedAt:  at,
	}
	if err := d.vms.AppendAnomaly(ctx, vm.ID, anomaly); err != nil {
		return store.WrapWrite("append", "anomaly", vm.ID, err)
	}

	metrics.Get().IncAnomaly(string(r.Metric))
	d.publisher.AnomalyDetected(vm, anomaly)
	logger.WithVM(vm.ID).Warnf("Anomaly on %s: value=%.2f mean=%.2f stddev=%.2f z=%.2f",
		r.Metric, r.Current, r.Stats.Mean, r.Stats.StdDev, r.ZScore)
	return nil
}

// TypeFor maps a metric to the anomaly type recorded on the VM.
func TypeFor(metric models.MetricName) models.AnomalyType {
	switch metric {
	case models.MetricCPU:
		return models.AnomalyCPUSpike
	case models.MetricMemory:
		return models.AnomalyMemoryLeak
	case models.MetricNetworkIn, models.MetricNetworkOut:
		return models.AnomalyUnusualTraffic
	}
	return models.AnomalyPerformanceDegradation
}

func describe(metric models.MetricName) (label, unit string) {
	switch metric {
	case models.MetricCPU:
		return "CPU", "%"
	case models.MetricMemory:
		return "Memory", "%"
	case models.MetricDisk:
		return "Disk", "%"
	case models.MetricNetworkIn:
		return "Network in", " bytes"
	case models.MetricNetworkOut:
		return "Network out", " bytes"
	}
	return string(metric), ""
}
