package store

import (
	"context"
	"sync"
	"time"
)

// MemoryKVStore 进程内 KV 实现（memory 后端运行时没有 Redis 时使用）
//
// 惰性过期：读到已过期的键时删除并按 miss 处理。
type MemoryKVStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // 零值表示不过期
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryKVStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired() {
		delete(m.entries, key)
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

func (m *MemoryKVStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = newMemoryEntry(value, ttl)
	return nil
}

func (m *MemoryKVStore) SetNX(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && !entry.expired() {
		return false, nil
	}
	m.entries[key] = newMemoryEntry(value, ttl)
	return true, nil
}

func (m *MemoryKVStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func newMemoryEntry(value string, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return entry
}

func (e memoryEntry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}
