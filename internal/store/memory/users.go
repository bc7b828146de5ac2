package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

var (
	_ store.UserStore       = (*UserStore)(nil)
	_ store.CredentialStore = (*UserStore)(nil)
)

func NewUserStore(users ...*models.User) *UserStore {
	s := &UserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		c := *u
		s.users[u.ID] = &c
	}
	return s
}

func (s *UserStore) Put(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *user
	s.users[user.ID] = &c
}

func (s *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *UserStore) ListActive(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.User
	for _, u := range s.users {
		if u.IsActive {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) SetPasswordHash(ctx context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}
