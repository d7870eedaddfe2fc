package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
)

type memoryState struct {
	state     oauth.State
	expiresAt time.Time
}

// MemoryStateStore keeps OAuth state in process memory. It is used when no
// Redis address is configured.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]memoryState
	now    func() time.Time
}

var _ repository.OAuthStateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]memoryState), now: time.Now}
}

func (s *MemoryStateStore) SaveState(ctx context.Context, key string, data oauth.State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.states {
		if !now.Before(v.expiresAt) {
			delete(s.states, k)
		}
	}
	s.states[key] = memoryState{state: data, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStateStore) GetState(ctx context.Context, key string) (*oauth.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.states[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(v.expiresAt) {
		delete(s.states, key)
		return nil, nil
	}
	state := v.state
	return &state, nil
}

func (s *MemoryStateStore) DeleteState(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}
