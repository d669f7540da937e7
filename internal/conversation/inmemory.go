package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps one log per session id in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memoryLog)}
}

func (s *MemoryStore) Session(_ context.Context, id string) (Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.sessions[id]; ok {
		return l, nil
	}
	l := &memoryLog{}
	s.sessions[id] = l
	return l, nil
}

type memoryLog struct {
	mu    sync.RWMutex
	turns []Turn
}

func (l *memoryLog) Append(_ context.Context, t Turn) error {
	l.mu.Lock()
	l.turns = append(l.turns, t)
	l.mu.Unlock()
	return nil
}

func (l *memoryLog) Window(_ context.Context, n int) ([]Turn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if n > 0 && len(l.turns) > n {
		start = len(l.turns) - n
	}
	out := make([]Turn, len(l.turns)-start)
	copy(out, l.turns[start:])
	return out, nil
}

func (l *memoryLog) Full(_ context.Context) ([]Turn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out, nil
}

func (l *memoryLog) Reset(_ context.Context) error {
	l.mu.Lock()
	l.turns = nil
	l.mu.Unlock()
	return nil
}
