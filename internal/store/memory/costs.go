package memory

import (
	"context"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type CostStore struct {
	mu      sync.RWMutex
	records []models.CostRecord
}

var _ store.CostStore = (*CostStore)(nil)

func NewCostStore(records ...models.CostRecord) *CostStore {
	return &CostStore{records: records}
}

func (s *CostStore) Add(record models.CostRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *CostStore) SumBetween(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, r := range s.records {
		if r.UserID == userID && !r.PeriodStart.Before(from) && r.PeriodStart.Before(to) {
			total += r.Amount
		}
	}
	return total, nil
}
