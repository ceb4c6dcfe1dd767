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

package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/inventory"
)

// graphSource serves a canned dependency graph: name -> direct deps.
type graphSource struct {
	deps map[string]map[string]string
	fail map[string]bool
}

func (g *graphSource) Metadata(_ context.Context, name, version string) (*datasource.PackageMetadata, error) {
	if g.fail[name] {
		return nil, fmt.Errorf("registry failure for %s", name)
	}
	if version == "" {
		version = "1.0.0"
	}
	return &datasource.PackageMetadata{
		Ecosystem:    inventory.EcosystemNPM,
		Name:         name,
		Version:      version,
		Dependencies: g.deps[name],
	}, nil
}

func npmManifest(deps map[string]string) *inventory.Manifest {
	m := &inventory.Manifest{Ecosystem: inventory.EcosystemNPM, Path: "package.json"}
	for name, spec := range deps {
		m.Packages = append(m.Packages, inventory.PackageRef{
			Ecosystem: inventory.EcosystemNPM, Name: name, VersionSpec: spec,
		})
	}
	return m
}

func TestResolveTransitive(t *testing.T) {
	source := &graphSource{deps: map[string]map[string]string{
		"a": {"b": "1.0.0", "c": "1.0.0"},
		"b": {"c": "1.0.0"},
	}}
	g := Resolve(context.Background(), npmManifest(map[string]string{"a": "1.0.0"}),
		Config{NPM: source})

	if len(g.Packages()) != 3 {
		t.Fatalf("resolved %d packages, want 3 (a, b, c)", len(g.Packages()))
	}
	// Every non-root node has at least one parent (P6).
	for key, node := range g.Nodes {
		if key == RootKey {
			continue
		}
		if len(node.Parents) == 0 {
			t.Errorf("node %s has no parents", key)
		}
	}
	// c reached via both root->a->c and root->a->b->c keeps both edges
	// without duplicating the node.
	c := g.Nodes["npm/c"]
	if c == nil {
		t.Fatal("node npm/c missing")
	}
	if len(c.Parents) != 2 {
		t.Errorf("npm/c parents = %v, want a and b", c.Parents)
	}
}

func TestResolveMaxDepth(t *testing.T) {
	// A chain a -> b -> c -> d ... with depth limit 2 stops at b.
	source := &graphSource{deps: map[string]map[string]string{
		"a": {"b": "1.0.0"},
		"b": {"c": "1.0.0"},
		"c": {"d": "1.0.0"},
	}}
	g := Resolve(context.Background(), npmManifest(map[string]string{"a": "1.0.0"}),
		Config{NPM: source, MaxDepth: 2})
	if _, ok := g.Nodes["npm/b"]; !ok {
		t.Error("depth-2 node b missing")
	}
	if _, ok := g.Nodes["npm/c"]; ok {
		t.Error("node c resolved beyond max depth")
	}
}

func TestResolveCycle(t *testing.T) {
	source := &graphSource{deps: map[string]map[string]string{
		"a": {"b": "1.0.0"},
		"b": {"a": "1.0.0"},
	}}
	g := Resolve(context.Background(), npmManifest(map[string]string{"a": "1.0.0"}),
		Config{NPM: source})

	if len(g.Cycles) != 1 {
		t.Fatalf("got %d cycles, want exactly 1 (deduped)", len(g.Cycles))
	}
	want := []string{"a", "b", "a"}
	if diff := cmp.Diff(want, g.Cycles[0].Path); diff != "" {
		t.Errorf("cycle path diff (-want +got):\n%s", diff)
	}
	// Every cycle member is present in the graph (P6).
	for _, name := range g.Cycles[0].Path {
		if _, ok := g.Nodes["npm/"+name]; !ok {
			t.Errorf("cycle member %s not in graph", name)
		}
	}
}

func TestResolveVersionConflict(t *testing.T) {
	source := &graphSource{deps: map[string]map[string]string{
		"a": {"shared": "1.0.0"},
		"b": {"shared": "2.0.0"},
	}}
	g := Resolve(context.Background(), npmManifest(map[string]string{"a": "1.0.0", "b": "1.0.0"}),
		Config{NPM: source})

	if len(g.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want exactly 1 (P7)", len(g.Conflicts))
	}
	c := g.Conflicts[0]
	if c.Name != "shared" {
		t.Errorf("conflict package = %q, want shared", c.Name)
	}
	if len(c.ConflictingVersions) != 2 {
		t.Errorf("conflicting versions = %v, want both specs", c.ConflictingVersions)
	}
	if len(c.Paths) != len(c.ConflictingVersions) {
		t.Errorf("paths/%d do not pair with versions/%d", len(c.Paths), len(c.ConflictingVersions))
	}
}

func TestResolveRegistryFailurePartial(t *testing.T) {
	source := &graphSource{
		deps: map[string]map[string]string{"b": {"c": "1.0.0"}},
		fail: map[string]bool{"a": true},
	}
	g := Resolve(context.Background(), npmManifest(map[string]string{"a": "1.0.0", "b": "1.0.0"}),
		Config{NPM: source})

	a := g.Nodes["npm/a"]
	if a == nil || !a.Partial {
		t.Errorf("failed node a should be present and partial, got %+v", a)
	}
	// The sibling subtree is still expanded.
	if _, ok := g.Nodes["npm/c"]; !ok {
		t.Error("sibling expansion aborted by a's registry failure")
	}
}

func TestResolveNPMRangeMinVersion(t *testing.T) {
	if got := resolveVersion(inventory.PackageRef{
		Ecosystem: inventory.EcosystemNPM, Name: "x", VersionSpec: "^1.2.3",
	}); got != "1.2.3" {
		t.Errorf("resolveVersion(^1.2.3) = %q, want 1.2.3", got)
	}
	if got := resolveVersion(inventory.PackageRef{
		Ecosystem: inventory.EcosystemNPM, Name: "x", ResolvedVersion: "2.0.0",
	}); got != "2.0.0" {
		t.Errorf("resolveVersion with pin = %q, want 2.0.0", got)
	}
}
