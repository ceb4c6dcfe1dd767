// Copyright 2026 depscan authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"container/list"
	"sync"
	"time"
)

// Memory is an in-process Store with TTL expiry and LRU eviction.
// Reads are concurrent; writes and evictions are serialized behind one
// mutex so an entry is either fully live or invisible to readers.
type Memory struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	entries  map[string]*list.Element
	// lru holds *memEntry, most recently accessed at the front.
	lru *list.List

	hits, misses, evictions, expirations int64

	// now is replaceable for expiry tests.
	now func() time.Time
}

type memEntry struct {
	key            string
	value          []byte
	createdAt      time.Time
	lastAccessedAt time.Time
	ttl            time.Duration
	hitCount       int64
}

// NewMemory returns a Memory store that evicts once the stored blobs
// exceed maxBytes. maxBytes <= 0 uses DefaultMaxSizeBytes.
func NewMemory(maxBytes int64) *Memory {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSizeBytes
	}
	return &Memory{
		maxBytes: maxBytes,
		entries:  map[string]*list.Element{},
		lru:      list.New(),
		now:      time.Now,
	}
}

func (e *memEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.After(e.createdAt.Add(e.ttl))
}

// Get returns a copy of the blob stored under key, if live.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}
	e := el.Value.(*memEntry)
	if e.expired(m.now()) {
		m.removeLocked(el)
		m.expirations++
		m.misses++
		return nil, false
	}
	e.lastAccessedAt = m.now()
	e.hitCount++
	m.lru.MoveToFront(el)
	m.hits++
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Put stores value under key, replacing any previous entry. ttl <= 0 uses
// DefaultTTL.
func (m *Memory) Put(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.removeLocked(el)
	}
	now := m.now()
	e := &memEntry{
		key:            key,
		value:          stored,
		createdAt:      now,
		lastAccessedAt: now,
		ttl:            ttl,
	}
	m.entries[key] = m.lru.PushFront(e)
	m.curBytes += int64(len(stored))
	m.evictOverBudgetLocked()
}

// Invalidate removes the entry under key, if any.
func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.removeLocked(el)
	}
}

// CleanupExpired removes every expired entry.
func (m *Memory) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for el := m.lru.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*memEntry).expired(now) {
			m.removeLocked(el)
			m.expirations++
			removed++
		}
		el = next
	}
	return removed
}

// Stats returns a snapshot of the store counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Entries:     len(m.entries),
		SizeBytes:   m.curBytes,
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		Expirations: m.expirations,
	}
}

func (m *Memory) removeLocked(el *list.Element) {
	e := el.Value.(*memEntry)
	m.lru.Remove(el)
	delete(m.entries, e.key)
	m.curBytes -= int64(len(e.value))
}

// evictOverBudgetLocked drops least-recently-accessed entries until the
// stored bytes fit the budget again.
func (m *Memory) evictOverBudgetLocked() {
	for m.curBytes > m.maxBytes {
		el := m.lru.Back()
		if el == nil {
			return
		}
		m.removeLocked(el)
		m.evictions++
	}
}
