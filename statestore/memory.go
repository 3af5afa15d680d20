package statestore

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/ekemper/leadgen/errors"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a mutex-guarded in-process Store. It backs tests and
// single-node deployments where Redis is not configured. State does not
// survive process restart, which is acceptable for the breaker: absence of
// the key means CLOSED.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]memoryEntry
	queues map[string][][]byte
	now    func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:  make(map[string]memoryEntry),
		queues: make(map[string][][]byte),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests use this to exercise expiry
// without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// current returns the live value for key, honoring expiry.
// REQUIRES: s.mu held.
func (s *MemoryStore) current(key string) ([]byte, bool) {
	entry, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.items, key)
		return nil, false
	}
	return entry.value, true
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.current(key)
	if !ok {
		return nil, errors.Wrapf(ErrKeyMissing, "key %s", key)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(key, value, ttl)
	return nil
}

// REQUIRES: s.mu held.
func (s *MemoryStore) set(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	s.items[key] = memoryEntry{value: stored, expiresAt: expiresAt}
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, expect, next []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.current(key)
	if !ok {
		cur = nil
	}
	if !bytes.Equal(cur, expect) {
		return false, nil
	}
	s.set(key, next, ttl)
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Push(ctx context.Context, queue string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.queues[queue] = append(s.queues[queue], stored)
	return nil
}

func (s *MemoryStore) Pop(ctx context.Context, queue string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.queues[queue]
	if len(items) == 0 {
		return nil, nil
	}
	head := items[0]
	s.queues[queue] = items[1:]
	return head, nil
}
