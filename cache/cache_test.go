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
	"bytes"
	"fmt"
	"testing"
	"time"
)

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("npm", "lodash@4.17.21")
	k2 := Key("npm", "lodash@4.17.21")
	if k1 != k2 {
		t.Errorf("Key not deterministic: %q vs %q", k1, k2)
	}
	if k1 == Key("pypi", "lodash@4.17.21") {
		t.Errorf("Key ignores prefix")
	}
}

func TestMemoryTTL(t *testing.T) {
	now := time.Now()
	m := NewMemory(1 << 20)
	m.now = func() time.Time { return now }

	m.Put("k", []byte("v"), time.Minute)
	if got, ok := m.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("Get before expiry = %q, %v", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := m.Get("k"); ok {
		t.Errorf("Get after expiry returned a hit")
	}
	if s := m.Stats(); s.Expirations != 1 {
		t.Errorf("Expirations = %d, want 1", s.Expirations)
	}
}

func TestMemoryEviction(t *testing.T) {
	m := NewMemory(30)
	for i := 0; i < 4; i++ {
		m.Put(fmt.Sprintf("k%d", i), make([]byte, 10), time.Hour)
	}
	s := m.Stats()
	if s.SizeBytes > 30 {
		t.Errorf("SizeBytes = %d exceeds budget 30", s.SizeBytes)
	}
	if s.Evictions == 0 {
		t.Errorf("expected evictions, got none")
	}
	// The oldest entry is gone, the newest survives.
	if _, ok := m.Get("k0"); ok {
		t.Errorf("least-recently-used entry still present")
	}
	if _, ok := m.Get("k3"); !ok {
		t.Errorf("newest entry evicted")
	}
}

func TestMemoryPutReplaces(t *testing.T) {
	m := NewMemory(1 << 20)
	m.Put("k", []byte("v1"), time.Hour)
	m.Put("k", []byte("v2"), time.Hour)
	if got, _ := m.Get("k"); string(got) != "v2" {
		t.Errorf("Get after replace = %q, want v2", got)
	}
	if s := m.Stats(); s.Entries != 1 {
		t.Errorf("Entries = %d, want 1", s.Entries)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory(1 << 20)
	m.Put("k", []byte("orig"), time.Hour)
	got, _ := m.Get("k")
	got[0] = 'X'
	if again, _ := m.Get("k"); !bytes.Equal(again, []byte("orig")) {
		t.Errorf("mutating a returned blob changed the store: %q", again)
	}
}

func TestDiskSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	d.Put("host:abc", []byte("payload"), time.Hour)

	reopened, err := NewDisk(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewDisk reopen: %v", err)
	}
	if got, ok := reopened.Get("host:abc"); !ok || string(got) != "payload" {
		t.Errorf("Get after reopen = %q, %v; want payload", got, ok)
	}
}

func TestDiskExpiredDroppedOnLoad(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	d.Put("k", []byte("v"), time.Nanosecond)
	time.Sleep(10 * time.Millisecond)

	reopened, err := NewDisk(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewDisk reopen: %v", err)
	}
	if _, ok := reopened.Get("k"); ok {
		t.Errorf("expired entry survived reopen")
	}
}
