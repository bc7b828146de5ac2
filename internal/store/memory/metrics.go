package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type MetricStore struct {
	mu      sync.RWMutex
	samples map[string][]*models.MetricSample
}

var _ store.MetricStore = (*MetricStore)(nil)

func NewMetricStore() *MetricStore {
	return &MetricStore{samples: make(map[string][]*models.MetricSample)}
}

func (s *MetricStore) Append(ctx context.Context, sample *models.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *sample
	list := append(s.samples[sample.VMID], &c)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	s.samples[sample.VMID] = list
	return nil
}

func (s *MetricStore) Query(ctx context.Context, vmID string, since time.Time) ([]*models.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MetricSample
	for _, sample := range s.samples[vmID] {
		if !sample.Timestamp.Before(since) {
			c := *sample
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MetricStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for vmID, list := range s.samples {
		kept := list[:0]
		for _, sample := range list {
			if sample.Timestamp.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, sample)
		}
		s.samples[vmID] = kept
	}
	return purged, nil
}
