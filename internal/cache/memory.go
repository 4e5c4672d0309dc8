package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a thread-safe in-memory Cache with TTL freshness and optional LRU bound.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	entry        Entry
	lastAccessed time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock replaces time.Now, for freshness tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMaxEntries bounds the cache; the least recently used entry is evicted
// when a new key would exceed it. Zero or less means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		m.maxEntries = n
	}
}

// NewMemory creates an in-memory cache. A non-positive ttl selects DefaultTTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the entry for companyKey if present and fresh.
// Stale entries are left in place and reported as a miss.
func (m *Memory) Get(_ context.Context, companyKey string) (*Entry, bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.entries[companyKey]
	if !exists || !IsFresh(item.entry.CreatedAt, now, m.ttl) {
		return nil, false, nil
	}

	item.lastAccessed = now
	out := item.entry
	out.Suppliers = cloneRecords(item.entry.Suppliers)
	return &out, true, nil
}

// Put stores entry under entry.CompanyKey, replacing any previous entry.
// The entry is stamped with the cache clock.
func (m *Memory) Put(_ context.Context, entry Entry) error {
	now := m.now()
	entry.CreatedAt = now
	entry.Suppliers = cloneRecords(entry.Suppliers)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		if _, exists := m.entries[entry.CompanyKey]; !exists {
			m.evictLRU()
		}
	}

	m.entries[entry.CompanyKey] = &memoryEntry{entry: entry, lastAccessed: now}
	return nil
}

// Delete removes the entry for companyKey.
func (m *Memory) Delete(_ context.Context, companyKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[companyKey]; !exists {
		return 0, nil
	}
	delete(m.entries, companyKey)
	return 1, nil
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.entries)
	m.entries = make(map[string]*memoryEntry)
	return n, nil
}

// Len returns the number of stored entries, fresh or stale.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Count returns Len.
func (m *Memory) Count(_ context.Context) (int, error) {
	return m.Len(), nil
}

// evictLRU removes the least recently used entry. Caller must hold the write lock.
func (m *Memory) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, item := range m.entries {
		if first || item.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.lastAccessed
			first = false
		}
	}

	if !first {
		delete(m.entries, oldestKey)
	}
}

var (
	_ Cache   = (*Memory)(nil)
	_ Clearer = (*Memory)(nil)
	_ Counter = (*Memory)(nil)
)
