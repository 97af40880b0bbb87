package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used when no Redis URL is
// configured. Sessions do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, tokenHash string, record Record, expiresAt time.Time) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[tokenHash] = memoryEntry{record: record, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[tokenHash]
	if !ok {
		return Record{}, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.records, tokenHash)
		return Record{}, ErrNotFound
	}
	return entry.record, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, tokenHash)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
