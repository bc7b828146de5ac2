package cache

import (
	"context"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// UserStore serves user lookups from the cache and falls back to the wrapped
// store. Preferences change rarely and are read on every alert.
type UserStore struct {
	next  store.UserStore
	cache Cache
	ttl   time.Duration
}

var _ store.UserStore = (*UserStore)(nil)

func NewUserStore(next store.UserStore, c Cache, ttl time.Duration) *UserStore {
	return &UserStore{next: next, cache: c, ttl: ttl}
}

func userKey(id string) string {
	return "user:" + id
}

func (s *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	ok, err := GetJSON(ctx, s.cache, userKey(id), &user)
	if err != nil {
		logger.WithUser(id).WithError(err).Warn("User cache read failed")
	}
	if ok {
		return &user, nil
	}

	u, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := SetJSON(ctx, s.cache, userKey(id), u, s.ttl); err != nil {
		logger.WithUser(id).WithError(err).Warn("User cache write failed")
	}
	return u, nil
}

func (s *UserStore) ListActive(ctx context.Context) ([]*models.User, error) {
	return s.next.ListActive(ctx)
}

func (s *UserStore) Invalidate(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, userKey(id))
}
