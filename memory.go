package datastore

import (
	"context"
	"sync"
	"time"
)

// Memory implements Engine with thread-safe in-memory storage. It keeps the
// full Entry (value, expiration, tag) per key and is the engine of choice
// for tests and for callers without a disk.
//
// Close is a no-op: unlike a disk engine, a reopened Memory starts empty, so
// resharding with OpenMemory migrates into a fresh map.
type Memory struct {
	path   string
	shards int

	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemory creates an in-memory Engine nominally bound to path.
func NewMemory(path string, shards int) *Memory {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &Memory{path: path, shards: shards, data: make(map[string]Entry)}
}

// OpenMemory is an Opener for Memory engines. The timeout and tag-index
// preferences are accepted and ignored: map access does not block and every
// scan is in-memory anyway.
func OpenMemory(path string, shards int, _ time.Duration, _ bool) (Engine, error) {
	return NewMemory(path, shards), nil
}

func (m *Memory) Path() string { return m.path }

func (m *Memory) Shards() int { return m.shards }

func (m *Memory) Get(ctx context.Context, key string) (Entry, error) {
	// Fast path: optimistic read with RLock.
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	if !e.Expired(time.Now()) {
		return cloneEntry(e), nil
	}

	// Slow path: entry expired, need write lock to delete.
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok = m.data[key]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	if e.Expired(time.Now()) {
		delete(m.data, key)
		return Entry{}, ErrKeyNotFound
	}
	return cloneEntry(e), nil
}

func (m *Memory) Set(ctx context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = cloneEntry(e)
	return nil
}

func (m *Memory) Add(ctx context.Context, key string, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		if !old.Expired(time.Now()) {
			return false, nil
		}
		delete(m.data, key)
	}
	m.data[key] = cloneEntry(e)
	return true, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || e.Expired(time.Now()) {
		delete(m.data, key)
		return ErrKeyNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	return ok && !e.Expired(time.Now()), nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0, len(m.data))
	for k, e := range m.data {
		if e.Expired(now) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *Memory) Clear(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.data)
	m.data = make(map[string]Entry)
	return n, nil
}

func (m *Memory) Evict(ctx context.Context, tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.data {
		if e.Tag == tag && tag != "" {
			delete(m.data, k)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Cull(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range m.data {
		if e.Expired(now) {
			delete(m.data, k)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Check(ctx context.Context, fix bool) ([]string, error) {
	return nil, nil
}

func (m *Memory) Volume(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var size int64
	for k, e := range m.data {
		size += int64(len(k) + len(e.Value) + len(e.Tag))
	}
	return size, nil
}

func (m *Memory) Close() error { return nil }

func cloneEntry(e Entry) Entry {
	e.Value = cloneBytes(e.Value)
	return e
}

func cloneBytes(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
