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

package datasource

import "sync"

// RequestCache deduplicates concurrent requests for the same key within
// one process: the first caller performs the fetch, later callers for the
// same key block and share its result. Successful results stay memoized.
type RequestCache[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*requestCall[V]
}

type requestCall[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// NewRequestCache creates a new RequestCache.
func NewRequestCache[K comparable, V any]() *RequestCache[K, V] {
	return &RequestCache[K, V]{calls: map[K]*requestCall[V]{}}
}

// Get returns the cached value for key, calling fn to produce it if
// necessary. Errors are not memoized so a failed fetch can be retried.
func (rc *RequestCache[K, V]) Get(key K, fn func() (V, error)) (V, error) {
	rc.mu.Lock()
	if c, ok := rc.calls[key]; ok {
		rc.mu.Unlock()
		<-c.done
		return c.val, c.err
	}
	c := &requestCall[V]{done: make(chan struct{})}
	rc.calls[key] = c
	rc.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	if c.err != nil {
		rc.mu.Lock()
		delete(rc.calls, key)
		rc.mu.Unlock()
	}
	return c.val, c.err
}
