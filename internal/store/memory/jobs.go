package memory

import (
	"context"
	"sync"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type JobRunStore struct {
	mu     sync.RWMutex
	nextID int64
	runs   []*models.JobRun
}

var _ store.JobRunStore = (*JobRunStore)(nil)

func NewJobRunStore() *JobRunStore {
	return &JobRunStore{}
}

func (s *JobRunStore) Record(ctx context.Context, run *models.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = s.nextID
	c := *run
	s.runs = append(s.runs, &c)
	return nil
}

func (s *JobRunStore) Recent(ctx context.Context, job string, limit int) ([]*models.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.JobRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Job != job {
			continue
		}
		c := *s.runs[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
