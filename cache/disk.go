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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vishu-2s/depscan/log"
)

// Disk is a Store that persists entries as one file per key so repeat runs
// reuse registry and LLM responses. An in-memory index built at startup
// tracks sizes and access order; the files themselves hold the blob plus
// its expiry metadata. Any filesystem error is logged and reported as a
// miss, never surfaced to callers.
type Disk struct {
	dir string
	mem *Memory // index + budget accounting over the same entries
}

// diskEntry is the on-disk envelope for one cache entry.
type diskEntry struct {
	Key        string    `json:"key"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
	Value      []byte    `json:"value"`
}

// NewDisk returns a Disk store rooted at dir, creating it if needed and
// loading any live entries persisted by earlier runs.
func NewDisk(dir string, maxBytes int64) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	d := &Disk{dir: dir, mem: NewMemory(maxBytes)}
	d.load()
	return d, nil
}

// load seeds the index from entries persisted by earlier runs.
func (d *Disk) load() {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		log.Warnf("cache: reading %s: %v", d.dir, err)
		return
	}
	now := time.Now()
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.dir, f.Name())
		e, err := readDiskEntry(path)
		if err != nil {
			log.Warnf("cache: discarding unreadable entry %s: %v", path, err)
			_ = os.Remove(path)
			continue
		}
		ttl := time.Duration(e.TTLSeconds) * time.Second
		if now.After(e.CreatedAt.Add(ttl)) {
			_ = os.Remove(path)
			continue
		}
		d.mem.Put(e.Key, e.Value, time.Until(e.CreatedAt.Add(ttl)))
	}
}

// Get returns the blob stored under key, if live.
func (d *Disk) Get(key string) ([]byte, bool) {
	return d.mem.Get(key)
}

// Put stores value under key and persists it.
func (d *Disk) Put(key string, value []byte, ttl time.Duration) {
	d.mem.Put(key, value, ttl)
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	e := diskEntry{
		Key:        key,
		CreatedAt:  time.Now(),
		TTLSeconds: int64(ttl / time.Second),
		Value:      value,
	}
	if err := writeDiskEntry(d.path(key), e); err != nil {
		log.Warnf("cache: persisting %s: %v", key, err)
	}
}

// Invalidate removes the entry under key, if any.
func (d *Disk) Invalidate(key string) {
	d.mem.Invalidate(key)
	if err := os.Remove(d.path(key)); err != nil && !os.IsNotExist(err) {
		log.Warnf("cache: removing %s: %v", key, err)
	}
}

// CleanupExpired removes every expired entry from index and disk.
func (d *Disk) CleanupExpired() int {
	removed := d.mem.CleanupExpired()
	files, err := os.ReadDir(d.dir)
	if err != nil {
		return removed
	}
	now := time.Now()
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.dir, f.Name())
		e, err := readDiskEntry(path)
		if err != nil {
			continue
		}
		if now.After(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)) {
			_ = os.Remove(path)
		}
	}
	return removed
}

// Stats returns a snapshot of the index counters.
func (d *Disk) Stats() Stats { return d.mem.Stats() }

// path maps a cache key to a filename. Keys are "prefix:hexdigest" so the
// only character needing substitution is the separator.
func (d *Disk) path(key string) string {
	return filepath.Join(d.dir, strings.ReplaceAll(key, ":", "_")+".json")
}

func readDiskEntry(path string) (diskEntry, error) {
	var e diskEntry
	b, err := os.ReadFile(path)
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(b, &e)
	return e, err
}

// writeDiskEntry writes atomically (temp file then rename) so a reader
// never observes a torn entry.
func writeDiskEntry(path string, e diskEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
