package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// Acknowledge moves an active alert to acknowledged on behalf of its owner.
func (s *Sink) Acknowledge(ctx context.Context, userID, alertID, by string) (*models.Alert, error) {
	return s.transition(ctx, userID, alertID, models.AlertStatusAcknowledged, func(a *models.Alert) {
		now := s.config.Now()
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = by
	})
}

func (s *Sink) Resolve(ctx context.Context, userID, alertID, by, notes string) (*models.Alert, error) {
	return s.transition(ctx, userID, alertID, models.AlertStatusResolved, func(a *models.Alert) {
		now := s.config.Now()
		a.ResolvedAt = &now
		a.ResolvedBy = by
		a.ResolutionNotes = strings.TrimSpace(notes)
	})
}

func (s *Sink) Ignore(ctx context.Context, userID, alertID string) (*models.Alert, error) {
	return s.transition(ctx, userID, alertID, models.AlertStatusIgnored, nil)
}

func (s *Sink) transition(ctx context.Context, userID, alertID string, next models.AlertStatus, apply func(*models.Alert)) (*models.Alert, error) {
	alert, err := s.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	// Other users' alerts are reported as missing.
	if alert.UserID != userID {
		return nil, store.ErrNotFound
	}
	if !alert.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, alert.Status, next)
	}

	alert.Status = next
	if apply != nil {
		apply(alert)
	}
	if err := s.alerts.UpdateStatus(ctx, alert); err != nil {
		return nil, store.WrapWrite("update", "alert", alert.ID, err)
	}

	s.publisher.AlertStatusChanged(alert)
	logger.WithUser(userID).Infof("Alert %s moved to %s", alert.ID, next)
	return alert, nil
}
