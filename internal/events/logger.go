package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// EventLogger writes every event to the structured log and persists job
// runs to the job run store.
type EventLogger struct {
	jobs      store.JobRunStore
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      sync.WaitGroup
}

func NewEventLogger(jobs store.JobRunStore, eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		jobs:      jobs,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (l *EventLogger) Start() {
	l.done.Add(1)
	go l.run()
}

func (l *EventLogger) Stop() {
	l.cancel()
	l.done.Wait()
}

func (l *EventLogger) run() {
	defer l.done.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"vm_id":      event.VMID,
		"user_id":    event.UserID,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})

	switch event.Severity {
	case models.EventSeverityCritical:
		entry.Error(event.Message)
	case models.EventSeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Debug(event.Message)
	}

	switch event.Type {
	case models.EventTypeJobCompleted, models.EventTypeJobFailed:
		l.persistJobRun(event)
	}
}

func (l *EventLogger) persistJobRun(event *models.Event) {
	run, ok := event.Data.(*models.JobRun)
	if !ok || l.jobs == nil {
		return
	}
	if err := l.jobs.Record(l.ctx, run); err != nil {
		logger.WithJob(run.Job).Errorf("Failed to persist job run: %v", err)
	}
}

func (l *EventLogger) LogToJSON(event *models.Event) string {
	data, _ := json.Marshal(event)
	return string(data)
}
