// Package snapshotstore persists named snapshot blobs produced by
// simcore.Sim.SaveSnapshot (spec §4.J). PgStore keeps them in Postgres
// (SPEC_FULL §11 domain stack, "jackc/pgx/v5"); MemStore keeps them in
// process memory, so the tests need no live Postgres. Outside this
// package's tests, no code constructs either store.
package snapshotstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Record is one stored snapshot's metadata plus its bytes.
type Record struct {
	Name      string
	Data      []byte
	CreatedAt time.Time
}

// Store persists and retrieves named snapshot blobs.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	// Prune deletes every record older than olderThan, returning the
	// names removed.
	Prune(ctx context.Context, olderThan time.Time) ([]string, error)
}

// MemStore is an in-process Store.
type MemStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]Record)}
}

func (m *MemStore) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.recs[name] = Record{Name: name, Data: cp, CreatedAt: time.Now()}
	return nil
}

func (m *MemStore) Load(_ context.Context, name string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[name]
	if !ok {
		return Record{}, ErrNotFound(name)
	}
	return r, nil
}

func (m *MemStore) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) Prune(_ context.Context, olderThan time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for name, r := range m.recs {
		if r.CreatedAt.Before(olderThan) {
			delete(m.recs, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed, nil
}
