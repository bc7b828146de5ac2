package events

import (
	"fmt"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// Publisher builds domain events and puts them on the bus. A nil *Publisher
// drops everything, so components can run without a bus.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func alertSeverity(s models.Severity) models.EventSeverity {
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return models.EventSeverityCritical
	case models.SeverityMedium:
		return models.EventSeverityWarning
	}
	return models.EventSeverityInfo
}

func (p *Publisher) MetricsCollected(vm *models.VM, sample *models.MetricSample) {
	event := models.NewEvent(models.EventTypeMetricsCollected, vm.ID, "Metrics collected").
		WithUser(vm.UserID).
		WithData(sample)
	p.publish(event)
}

func (p *Publisher) AlertCreated(alert *models.Alert) {
	event := models.NewEvent(models.EventTypeAlertCreated, alert.VMID, alert.Title).
		WithUser(alert.UserID).
		WithSeverity(alertSeverity(alert.Severity)).
		WithData(alert)
	p.publish(event)
}

func (p *Publisher) AlertSuppressed(alert *models.Alert, existingID string) {
	event := models.NewEvent(models.EventTypeAlertSuppressed, alert.VMID, "Duplicate alert suppressed: "+string(alert.AlertType)).
		WithUser(alert.UserID).
		WithData(map[string]interface{}{
			"alert_type":  alert.AlertType,
			"existing_id": existingID,
		})
	p.publish(event)
}

func (p *Publisher) AlertStatusChanged(alert *models.Alert) {
	event := models.NewEvent(models.EventTypeAlertStatusChanged, alert.VMID, "Alert "+string(alert.Status)).
		WithUser(alert.UserID).
		WithData(alert)
	p.publish(event)
}

func (p *Publisher) AnomalyDetected(vm *models.VM, anomaly models.Anomaly) {
	event := models.NewEvent(models.EventTypeAnomalyDetected, vm.ID, anomaly.Description).
		WithUser(vm.UserID).
		WithSeverity(models.EventSeverityWarning).
		WithData(anomaly)
	p.publish(event)
}

func (p *Publisher) SnapshotCreated(snapshot *models.Snapshot) {
	event := models.NewEvent(models.EventTypeSnapshotCreated, snapshot.VMID, "Snapshot created: "+snapshot.SnapshotID).
		WithUser(snapshot.UserID).
		WithData(snapshot)
	p.publish(event)
}

func (p *Publisher) SnapshotUpdated(snapshot *models.Snapshot) {
	event := models.NewEvent(models.EventTypeSnapshotUpdated, snapshot.VMID, "Snapshot "+string(snapshot.Status)+": "+snapshot.SnapshotID).
		WithUser(snapshot.UserID).
		WithData(snapshot)
	p.publish(event)
}

func (p *Publisher) SnapshotDeleted(snapshot *models.Snapshot) {
	event := models.NewEvent(models.EventTypeSnapshotDeleted, snapshot.VMID, "Snapshot deleted: "+snapshot.SnapshotID).
		WithUser(snapshot.UserID).
		WithData(snapshot)
	p.publish(event)
}

func (p *Publisher) SnapshotFailed(vm *models.VM, err error) {
	event := models.NewEvent(models.EventTypeSnapshotFailed, vm.ID, "Snapshot failed for "+vm.Name).
		WithUser(vm.UserID).
		WithSeverity(models.EventSeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) VMStateChanged(vm *models.VM, from, to models.VMState) {
	msg := fmt.Sprintf("VM %s changed state from %s to %s", vm.Name, from, to)
	event := models.NewEvent(models.EventTypeVMStateChanged, vm.ID, msg).
		WithUser(vm.UserID).
		WithData(map[string]interface{}{
			"previous_state": from,
			"current_state":  to,
		})
	p.publish(event)
}

func (p *Publisher) JobFinished(run *models.JobRun) {
	eventType := models.EventTypeJobCompleted
	severity := models.EventSeverityInfo
	msg := fmt.Sprintf("Job %s finished: %d processed, %d failed", run.Job, run.Processed, run.Failed)
	if run.Error != "" {
		eventType = models.EventTypeJobFailed
		severity = models.EventSeverityCritical
		msg = fmt.Sprintf("Job %s failed: %s", run.Job, run.Error)
	}
	event := models.NewEvent(eventType, "", msg).
		WithSeverity(severity).
		WithData(run)
	p.publish(event)
}

func (p *Publisher) Error(vm *models.VM, message string, err error) {
	event := models.NewEvent(models.EventTypeError, vm.ID, message).
		WithUser(vm.UserID).
		WithSeverity(models.EventSeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
