package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

var errDuplicateSnapshotID = errors.New("duplicate snapshot_id")

type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*models.Snapshot
}

var _ store.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]*models.Snapshot)}
}

func (s *SnapshotStore) Insert(ctx context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.snapshots {
		if existing.SnapshotID == snap.SnapshotID {
			return store.WrapWrite("insert", "snapshot", snap.SnapshotID, errDuplicateSnapshotID)
		}
	}
	c := *snap
	s.snapshots[snap.ID] = &c
	return nil
}

func (s *SnapshotStore) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *snap
	return &c, nil
}

func (s *SnapshotStore) GetBySnapshotID(ctx context.Context, snapshotID string) (*models.Snapshot, error) {
	list := s.filter(func(snap *models.Snapshot) bool { return snap.SnapshotID == snapshotID })
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (s *SnapshotStore) Update(ctx context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.snapshots[snap.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Status = snap.Status
	existing.SizeGB = snap.SizeGB
	existing.IsExpired = snap.IsExpired
	existing.CompletedAt = snap.CompletedAt
	existing.DeletedAt = snap.DeletedAt
	existing.ErrorMessage = snap.ErrorMessage
	return nil
}

func (s *SnapshotStore) ListExpired(ctx context.Context, now time.Time) ([]*models.Snapshot, error) {
	return s.filter(func(snap *models.Snapshot) bool { return snap.IsExpiredAt(now) }), nil
}

func (s *SnapshotStore) ListPending(ctx context.Context) ([]*models.Snapshot, error) {
	return s.filter(func(snap *models.Snapshot) bool { return snap.Status == models.SnapshotPending }), nil
}

func (s *SnapshotStore) List(ctx context.Context, f store.SnapshotFilter) ([]*models.Snapshot, error) {
	out := s.filter(func(snap *models.Snapshot) bool {
		return (f.UserID == "" || snap.UserID == f.UserID) &&
			(f.VMID == "" || snap.VMID == f.VMID) &&
			(f.Status == "" || snap.Status == f.Status)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *SnapshotStore) Stats(ctx context.Context, userID string) (*models.SnapshotStats, error) {
	stats := &models.SnapshotStats{
		ByProvider: make(map[models.Provider]int),
		ByStatus:   make(map[models.SnapshotStatus]int),
	}
	for _, snap := range s.filter(func(snap *models.Snapshot) bool { return snap.UserID == userID }) {
		stats.TotalSnapshots++
		if snap.SizeGB != nil {
			stats.TotalSizeGB += *snap.SizeGB
		}
		stats.ByProvider[snap.Provider]++
		stats.ByStatus[snap.Status]++
	}
	return stats, nil
}

func (s *SnapshotStore) filter(keep func(*models.Snapshot) bool) []*models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Snapshot
	for _, snap := range s.snapshots {
		if keep(snap) {
			c := *snap
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SnapshotID < out[j].SnapshotID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
