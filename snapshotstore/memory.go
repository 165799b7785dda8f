package snapshotstore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/goliatone/go-feed-cache/cache"
)

type memItem struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process snapshot store. It survives manager restarts
// inside one process, which is enough for tests and single node setups.
type Memory struct {
	data *expirable.LRU[string, memItem]
	now  func() time.Time
}

var _ cache.SnapshotStore = (*Memory)(nil)

// NewMemory returns a store holding at most capacity snapshots, each kept
// no longer than maxTTL.
func NewMemory(capacity int, maxTTL time.Duration) *Memory {
	return &Memory{
		data: expirable.NewLRU[string, memItem](capacity, nil, maxTTL),
		now:  time.Now,
	}
}

func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	item, ok := m.data.Get(key)
	if !ok {
		return nil, cache.ErrSnapshotNotFound
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		m.data.Remove(key)
		return nil, cache.ErrSnapshotNotFound
	}
	return append([]byte(nil), item.data...), nil
}

// Save stores a copy of data. ttl shorter than the store's maxTTL is
// honoured per key.
func (m *Memory) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	item := memItem{data: append([]byte(nil), data...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.data.Add(key, item)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.data.Remove(key)
	return nil
}

// Len returns the number of stored snapshots, expired ones included until
// they are evicted.
func (m *Memory) Len() int {
	return m.data.Len()
}
