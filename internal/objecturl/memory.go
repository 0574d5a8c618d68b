package objecturl

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vbonduro/album/internal/domain"
)

// Memory keeps photos in process memory until they are revoked.
type Memory struct {
	mu     sync.Mutex
	photos map[string]domain.Photo
}

func NewMemory() *Memory {
	return &Memory{photos: make(map[string]domain.Photo)}
}

func (m *Memory) Create(_ context.Context, photo domain.Photo) (string, error) {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos[token] = photo
	return token, nil
}

func (m *Memory) Resolve(_ context.Context, token string) (domain.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	photo, ok := m.photos[token]
	if !ok {
		return domain.Photo{}, ErrNotFound
	}
	return photo, nil
}

func (m *Memory) Revoke(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.photos[token]; !ok {
		return false, nil
	}
	delete(m.photos, token)
	return true, nil
}

// Len reports how many tokens are outstanding.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.photos)
}
