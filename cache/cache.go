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

// Package cache provides a key to blob store with TTL expiry and
// least-recently-accessed eviction under a byte budget. Keys are derived
// from content hashes so identical inputs map to the same entry across
// runs. Cache failures are never fatal: backends log and report a miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Default limits. These are configuration, not contracts; callers override
// them per store.
const (
	DefaultTTL          = 24 * time.Hour
	DefaultMaxSizeBytes = 100 * 1024 * 1024
)

// Store is the interface shared by all cache backends.
//
// Get returns the cached blob and true on a live hit. An expired entry is
// invisible and may be deleted as a side effect. Put replaces any existing
// entry under the same key. Callers receive copies; mutating a returned
// blob never affects the store.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte, ttl time.Duration)
	Invalidate(key string)
	// CleanupExpired removes all expired entries and returns how many
	// were removed.
	CleanupExpired() int
	Stats() Stats
}

// Stats is a point-in-time snapshot of a store's state and counters.
type Stats struct {
	Entries     int
	SizeBytes   int64
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// Key builds a deterministic cache key from a namespace prefix and the
// content it identifies.
func Key(prefix string, content string) string {
	sum := sha256.Sum256([]byte(content))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// Noop is a Store that caches nothing. Used when caching is disabled.
type Noop struct{}

// Get always misses.
func (Noop) Get(string) ([]byte, bool) { return nil, false }

// Put discards the value.
func (Noop) Put(string, []byte, time.Duration) {}

// Invalidate does nothing.
func (Noop) Invalidate(string) {}

// CleanupExpired does nothing.
func (Noop) CleanupExpired() int { return 0 }

// Stats returns zero counters.
func (Noop) Stats() Stats { return Stats{} }
