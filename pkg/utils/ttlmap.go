package utils

import (
	"sync"
	"time"
)

// sweepThreshold is the size above which Acquire drops expired entries.
const sweepThreshold = 1024

// TTLMap is a concurrency-safe map whose entries expire after a fixed duration.
// Expired entries are dropped lazily.
type TTLMap[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLMap creates a map whose entries live for ttl.
func NewTTLMap[K comparable, V any](ttl time.Duration) *TTLMap[K, V] {
	return &TTLMap[K, V]{
		ttl:     ttl,
		entries: make(map[K]ttlEntry[V]),
	}
}

// Acquire stores value under key unless a live entry exists. It returns the
// time left on the existing entry when it does not store.
func (m *TTLMap[K, V]) Acquire(key K, value V) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, ok := m.entries[key]; ok && now.Before(entry.expiresAt) {
		return entry.expiresAt.Sub(now), false
	}

	m.entries[key] = ttlEntry[V]{value: value, expiresAt: now.Add(m.ttl)}

	if len(m.entries) > sweepThreshold {
		for k, entry := range m.entries {
			if now.After(entry.expiresAt) {
				delete(m.entries, k)
			}
		}
	}

	return 0, true
}
