package persistence

import (
	"context"
	"sync"
)

// MemoryStore keeps subtitle text and saved state for the lifetime of the
// process. It stands in for SQLiteStore when the database cannot be opened.
type MemoryStore struct {
	mu        sync.RWMutex
	subtitles map[string]string
	state     map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subtitles: make(map[string]string),
		state:     make(map[string][]byte),
	}
}

func (s *MemoryStore) GetSubtitleText(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.subtitles[key]
	return text, ok, nil
}

func (s *MemoryStore) PutSubtitleText(_ context.Context, key string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subtitles[key] = text
	return nil
}

func (s *MemoryStore) GetState(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.state[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *MemoryStore) PutState(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = append([]byte(nil), value...)
	return nil
}
