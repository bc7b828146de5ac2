// Package evaluator compares a VM's latest metric sample with its owner's
// alert thresholds.
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// CriticalLevel is the utilization above which a breach is critical rather than high.
const CriticalLevel = 95.0

// Requester accepts alert candidates. The dedup sink implements it.
type Requester interface {
	Request(ctx context.Context, candidate *models.Alert) (bool, error)
}

type Config struct {
	Defaults      models.AlertThresholds
	CriticalLevel float64
}

type Evaluator struct {
	config    Config
	requester Requester
}

func New(cfg Config, requester Requester) *Evaluator {
	if cfg.Defaults == (models.AlertThresholds{}) {
		cfg.Defaults = models.DefaultAlertThresholds()
	}
	if cfg.CriticalLevel == 0 {
		cfg.CriticalLevel = CriticalLevel
	}
	return &Evaluator{config: cfg, requester: requester}
}

type check struct {
	metric    models.MetricName
	label     string
	alertType models.AlertType
	threshold func(models.AlertThresholds) float64
}

var checks = []check{
	{models.MetricCPU, "CPU", models.AlertCPUHigh, func(t models.AlertThresholds) float64 { return t.CPU }},
	{models.MetricMemory, "Memory", models.AlertMemoryHigh, func(t models.AlertThresholds) float64 { return t.Memory }},
	{models.MetricDisk, "Disk", models.AlertDiskHigh, func(t models.AlertThresholds) float64 { return t.Disk }},
}

// Check returns one alert candidate per breached threshold. A value equal to
// its threshold is not a breach, and unreported metrics are skipped.
func (e *Evaluator) Check(vm *models.VM, sample *models.MetricSample, thresholds models.AlertThresholds) []*models.Alert {
	if sample == nil {
		return nil
	}
	thresholds = thresholds.WithDefaults(e.config.Defaults)

	var out []*models.Alert
	for _, c := range checks {
		value, ok := sample.Value(c.metric)
		if !ok {
			continue
		}
		limit := c.threshold(thresholds)
		if value <= limit {
			continue
		}

		severity := models.SeverityHigh
		if value > e.config.CriticalLevel {
			severity = models.SeverityCritical
		}

		out = append(out, &models.Alert{
			UserID:    vm.UserID,
			VMID:      vm.ID,
			AlertType: c.alertType,
			Severity:  severity,
			Title:     fmt.Sprintf("High %s usage on %s", usageLabel(c.label), vm.Name),
			Message:   fmt.Sprintf("%s utilization is %.2f%%, which exceeds the threshold of %v%%", c.label, value, limit),
			Metadata: map[string]interface{}{
				"currentValue": value,
				"threshold":    limit,
				"instanceId":   vm.InstanceID,
				"provider":     string(vm.Provider),
			},
		})
	}
	return out
}

// Evaluate checks sample and requests an alert for every breach. It returns
// how many candidates the sink accepted.
func (e *Evaluator) Evaluate(ctx context.Context, vm *models.VM, sample *models.MetricSample, thresholds models.AlertThresholds) (int, error) {
	accepted := 0
	for _, candidate := range e.Check(vm, sample, thresholds) {
		inserted, err := e.requester.Request(ctx, candidate)
		if err != nil {
			return accepted, fmt.Errorf("failed to request %s alert: %w", candidate.AlertType, err)
		}
		if inserted {
			accepted++
			logger.WithVM(vm.ID).Infof("Threshold breached: %s", candidate.Message)
		}
	}
	return accepted, nil
}

// usageLabel keeps the CPU acronym upper case in titles.
func usageLabel(label string) string {
	if label == "CPU" {
		return label
	}
	return strings.ToLower(label)
}
