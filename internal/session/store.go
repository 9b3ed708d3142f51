package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const DefaultTTL = 24 * time.Hour

// MutateFunc edits a loaded session in place. Returning an error aborts the
// update without saving.
type MutateFunc func(s *Session) error

type Store interface {
	Create(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type memEntry struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryStore keeps encoded sessions in process memory. Every load decodes
// a fresh copy, so callers never share a ledger.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memEntry
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, items: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	m.mu.Lock()
	m.items[s.ID] = memEntry{raw: raw, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(id)
}

func (m *MemoryStore) loadLocked(id string) (*Session, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.now().After(e.expiresAt) {
		delete(m.items, id)
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(e.raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn MutateFunc) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.loadLocked(id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	m.items[id] = memEntry{raw: raw, expiresAt: m.now().Add(m.ttl)}
	return s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}
