package snapshot

import (
	"context"
	"sync"
)

// memrepo keeps snapshots in process memory. Used when no store is
// configured and in tests.
type memrepo struct {
	mu    sync.RWMutex
	items map[string]*Snapshot
}

func NewMemoryRepository() Repository {
	return &memrepo{items: make(map[string]*Snapshot)}
}

func (m *memrepo) Save(ctx context.Context, s *Snapshot) (*Snapshot, error) {
	out, err := prepare(s)
	if err != nil {
		return nil, err
	}
	stored := *out
	m.mu.Lock()
	m.items[stored.ID] = &stored
	m.mu.Unlock()
	return out, nil
}

func (m *memrepo) Get(ctx context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *s
	return &copy, nil
}

func (m *memrepo) List(ctx context.Context, kind Kind, limit int) ([]*Snapshot, error) {
	m.mu.RLock()
	items := make([]*Snapshot, 0, len(m.items))
	for _, s := range m.items {
		if kind != "" && s.Kind != kind {
			continue
		}
		copy := *s
		items = append(items, &copy)
	}
	m.mu.RUnlock()

	sortNewestFirst(items)
	if n := normalizeLimit(limit); len(items) > n {
		items = items[:n]
	}
	return items, nil
}

func (m *memrepo) Close() error { return nil }
