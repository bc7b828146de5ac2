package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*models.Alert

	// InsertErr, when set, is returned by every Insert.
	InsertErr error
}

var _ store.AlertStore = (*AlertStore)(nil)

func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[string]*models.Alert)}
}

func (s *AlertStore) FindActiveRecent(ctx context.Context, key models.DedupKey, since time.Time) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.Alert
	for _, a := range s.alerts {
		if a.Key() != key || a.Status != models.AlertStatusActive || a.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}
	if newest == nil {
		return nil, nil
	}
	return cloneAlert(newest), nil
}

func (s *AlertStore) Insert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return store.WrapWrite("insert", "alert", alert.Key().String(), s.InsertErr)
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (s *AlertStore) Get(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAlert(a), nil
}

func (s *AlertStore) List(ctx context.Context, f store.AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Alert
	for _, a := range s.alerts {
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if f.VMID != "" && a.VMID != f.VMID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *AlertStore) UpdateStatus(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alert.ID]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = alert.Status
	a.AcknowledgedAt = alert.AcknowledgedAt
	a.AcknowledgedBy = alert.AcknowledgedBy
	a.ResolvedAt = alert.ResolvedAt
	a.ResolvedBy = alert.ResolvedBy
	a.ResolutionNotes = alert.ResolutionNotes
	return nil
}

func (s *AlertStore) AddNotification(ctx context.Context, alertID string, record models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return store.ErrNotFound
	}
	a.Notifications = append(a.Notifications, record)
	return nil
}

// Count returns the number of stored alerts.
func (s *AlertStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

func cloneAlert(a *models.Alert) *models.Alert {
	c := *a
	if a.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Notifications = append([]models.NotificationRecord(nil), a.Notifications...)
	return &c
}
