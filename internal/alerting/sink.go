// Package alerting owns the alert lifecycle: deduplicated inserts, owner
// notification and status transitions.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/events"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/internal/resilience"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const DefaultDedupWindow = 60 * time.Minute

var ErrInvalidTransition = errors.New("invalid alert status transition")

type Config struct {
	DedupWindow   time.Duration
	NotifyRetries int
	RetryDelay    time.Duration
	NotifyTimeout time.Duration
	// NotifyWorkers caps concurrent notification deliveries.
	NotifyWorkers int
	Now           func() time.Time
}

// Sink is the only writer of alert records. Every component that wants an
// alert raised goes through Request.
type Sink struct {
	config    Config
	alerts    store.AlertStore
	users     store.UserStore
	notifiers []Notifier
	publisher *events.Publisher
	keys      *keyedMutex
	slots     chan struct{}
	pending   sync.WaitGroup
}

func NewSink(cfg Config, alerts store.AlertStore, users store.UserStore, notifiers []Notifier, publisher *events.Publisher) *Sink {
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.NotifyRetries == 0 {
		cfg.NotifyRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.NotifyTimeout == 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	if cfg.NotifyWorkers <= 0 {
		cfg.NotifyWorkers = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sink{
		config:    cfg,
		alerts:    alerts,
		users:     users,
		notifiers: notifiers,
		publisher: publisher,
		keys:      newKeyedMutex(),
		slots:     make(chan struct{}, cfg.NotifyWorkers),
	}
}

// Request persists candidate unless an active alert with the same key was
// created inside the dedup window. It reports whether the candidate was
// inserted. The owner is notified in the background; notification failures
// are logged and never returned.
func (s *Sink) Request(ctx context.Context, candidate *models.Alert) (bool, error) {
	inserted, err := s.insert(ctx, candidate)
	if err != nil || !inserted {
		return inserted, err
	}
	s.dispatch(ctx, candidate)
	return true, nil
}

func (s *Sink) insert(ctx context.Context, candidate *models.Alert) (bool, error) {
	key := candidate.Key()
	unlock := s.keys.Lock(key.String())
	defer unlock()

	now := s.config.Now()
	existing, err := s.alerts.FindActiveRecent(ctx, key, now.Add(-s.config.DedupWindow))
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate alert: %w", err)
	}
	if existing != nil {
		metrics.Get().IncAlertSuppressed(string(candidate.AlertType))
		s.publisher.AlertSuppressed(candidate, existing.ID)
		logger.WithVM(candidate.VMID).Debugf("Suppressed %s alert, %s is still active", candidate.AlertType, existing.ID)
		return false, nil
	}

	candidate.ID = models.NewUUID()
	candidate.Status = models.AlertStatusActive
	candidate.CreatedAt = now
	if err := s.alerts.Insert(ctx, candidate); err != nil {
		var perr *store.PersistenceError
		if !errors.As(err, &perr) {
			err = store.WrapWrite("insert", "alert", key.String(), err)
		}
		logger.WithFields(map[string]interface{}{
			"vm_id":      candidate.VMID,
			"user_id":    candidate.UserID,
			"alert_type": candidate.AlertType,
		}).WithError(err).Error("Failed to persist alert")
		return false, err
	}

	metrics.Get().IncAlert(string(candidate.AlertType), string(candidate.Severity))
	s.publisher.AlertCreated(candidate)
	logger.WithVM(candidate.VMID).Infof("Alert created: %s (%s)", candidate.Title, candidate.Severity)
	return true, nil
}

// dispatch delivers notifications on a separate goroutine, at most
// NotifyWorkers at a time. The goroutine works on its own copy of the alert
// and outlives the caller's context.
func (s *Sink) dispatch(ctx context.Context, candidate *models.Alert) {
	if len(s.notifiers) == 0 {
		return
	}
	alert := *candidate
	alert.Notifications = nil
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.slots <- struct{}{}
		defer func() { <-s.slots }()
		s.notify(ctx, &alert)
	}()
}

// Wait blocks until every dispatched notification has finished.
func (s *Sink) Wait() {
	s.pending.Wait()
}

func (s *Sink) notify(ctx context.Context, alert *models.Alert) {
	if len(s.notifiers) == 0 {
		return
	}
	log := logger.WithFields(map[string]interface{}{
		"alert_id":   alert.ID,
		"vm_id":      alert.VMID,
		"alert_type": alert.AlertType,
	})

	user, err := s.users.Get(ctx, alert.UserID)
	if err != nil {
		log.WithError(err).Warn("Skipping notification, owner lookup failed")
		return
	}
	if !user.Preferences.EmailAlerts {
		return
	}

	for _, n := range s.notifiers {
		channel := n.Channel()
		err := resilience.Retry(ctx, resilience.RetryConfig{
			Attempts: s.config.NotifyRetries,
			Delay:    s.config.RetryDelay,
		}, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, s.config.NotifyTimeout)
			defer cancel()

			sendErr := n.Notify(callCtx, user, alert)
			s.record(ctx, alert, channel, sendErr)
			return sendErr
		})
		if err != nil {
			log.WithField("channel", channel).WithError(err).Warn("Notification failed")
		}
	}
}

func (s *Sink) record(ctx context.Context, alert *models.Alert, channel models.NotificationChannel, sendErr error) {
	rec := models.NotificationRecord{
		Channel: channel,
		SentAt:  s.config.Now(),
		Success: sendErr == nil,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	metrics.Get().IncNotification(string(channel), rec.Success)

	if err := s.alerts.AddNotification(ctx, alert.ID, rec); err != nil {
		logger.WithField("alert_id", alert.ID).WithError(err).Warn("Failed to record notification attempt")
		return
	}
	alert.Notifications = append(alert.Notifications, rec)
}
