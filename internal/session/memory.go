package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	pending   Pending
	expiresAt time.Time
}

// MemoryStore хранит ожидающие выборы в памяти процесса.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore создаёт хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Put сохраняет выбор, заменяя предыдущий.
func (s *MemoryStore) Put(_ context.Context, accountID string, p Pending, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.entries[accountID] = memoryEntry{pending: p, expiresAt: now.Add(ttl)}
	return nil
}

// Take извлекает и удаляет выбор.
func (s *MemoryStore) Take(_ context.Context, accountID string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[accountID]
	delete(s.entries, accountID)
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, ErrNoPending
	}
	p := e.pending
	return &p, nil
}
