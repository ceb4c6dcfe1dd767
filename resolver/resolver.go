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

// Package resolver builds the transitive dependency graph of a manifest
// by walking registry metadata breadth-first. It reports circular
// dependencies and version conflicts; registry failures mark single
// nodes partial without aborting the traversal.
package resolver

import (
	"context"
	"slices"
	"sort"
	"strings"

	"deps.dev/util/semver"

	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

// DefaultMaxDepth bounds the BFS expansion.
const DefaultMaxDepth = 5

// RootKey is the synthetic node representing the analyzed project itself.
const RootKey = "(root)"

// MetadataSource fetches registry metadata for one package version.
type MetadataSource interface {
	Metadata(ctx context.Context, name, version string) (*datasource.PackageMetadata, error)
}

// Config is the resolver configuration.
type Config struct {
	MaxDepth int
	// NPM and PyPI provide registry metadata per ecosystem. A nil source
	// disables expansion for that ecosystem.
	NPM  MetadataSource
	PyPI MetadataSource
}

// Node is one package in the dependency graph.
type Node struct {
	Ref   inventory.PackageRef
	Depth int
	// Parents holds the node keys this package was reached from. Direct
	// dependencies have the root as parent.
	Parents  []string
	Children []string
	// DiscoveredFrom is "manifest" for direct dependencies and "registry"
	// for transitive ones.
	DiscoveredFrom string
	// Partial marks nodes whose registry lookup failed; their subtree is
	// unknown.
	Partial bool
}

// Cycle is one circular dependency, recorded by the package names along
// the loop.
type Cycle struct {
	Path     []string           `json:"cycle"`
	Severity inventory.Severity `json:"severity"`
}

// Conflict records one package name observed with several version specs.
type Conflict struct {
	Name                string     `json:"package"`
	ConflictingVersions []string   `json:"conflicting_versions"`
	Paths               [][]string `json:"paths"`
}

// Graph is the resolved dependency graph.
type Graph struct {
	// Nodes by key; Order preserves BFS discovery order.
	Nodes     map[string]*Node
	Order     []string
	Cycles    []Cycle
	Conflicts []Conflict
}

// Packages returns the package refs of all non-root nodes in discovery
// order.
func (g *Graph) Packages() []inventory.PackageRef {
	var refs []inventory.PackageRef
	for _, key := range g.Order {
		if key == RootKey {
			continue
		}
		refs = append(refs, g.Nodes[key].Ref)
	}
	return refs
}

func nodeKey(ref inventory.PackageRef) string {
	return string(ref.Ecosystem) + "/" + ref.Name
}

// specObservation tracks one version spec sighting for conflict detection.
type specObservation struct {
	spec string
	path []string
}

type traversal struct {
	cfg   Config
	graph *Graph
	// observations by node key, for version-conflict detection.
	observations map[string][]specObservation
	// cycleSeen dedupes cycles by their unordered name set.
	cycleSeen map[string]bool
}

type queueItem struct {
	ref   inventory.PackageRef
	depth int
	// path holds the package names from the root to (excluding) ref.
	path   []string
	parent string
}

// Resolve expands the manifest's direct dependencies into a graph.
func Resolve(ctx context.Context, m *inventory.Manifest, cfg Config) *Graph {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	t := &traversal{
		cfg: cfg,
		graph: &Graph{
			Nodes: map[string]*Node{RootKey: {Depth: 0, DiscoveredFrom: "manifest"}},
			Order: []string{RootKey},
		},
		observations: map[string][]specObservation{},
		cycleSeen:    map[string]bool{},
	}

	var queue []queueItem
	for _, ref := range m.Packages {
		queue = append(queue, queueItem{ref: ref, depth: 1, parent: RootKey})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		queue = append(queue, t.visit(ctx, item)...)
	}

	t.finishConflicts()
	return t.graph
}

// visit processes one queue item and returns the children to enqueue.
func (t *traversal) visit(ctx context.Context, item queueItem) []queueItem {
	key := nodeKey(item.ref)
	t.observations[key] = append(t.observations[key], specObservation{
		spec: item.ref.VersionSpec,
		path: append(slices.Clone(item.path), item.ref.Name),
	})

	// A dependency back onto a package already on this root-path is a
	// cycle; record it and stop this branch.
	if i := slices.Index(item.path, item.ref.Name); i >= 0 {
		t.recordCycle(append(item.path[i:], item.ref.Name))
		return nil
	}

	parent := t.graph.Nodes[item.parent]
	if node, ok := t.graph.Nodes[key]; ok {
		// Already expanded via another path; only record the new edge.
		if !slices.Contains(node.Parents, item.parent) {
			node.Parents = append(node.Parents, item.parent)
		}
		if !slices.Contains(parent.Children, key) {
			parent.Children = append(parent.Children, key)
		}
		return nil
	}

	node := &Node{
		Ref:            item.ref,
		Depth:          item.depth,
		Parents:        []string{item.parent},
		DiscoveredFrom: "registry",
	}
	if item.depth == 1 {
		node.DiscoveredFrom = "manifest"
	}
	t.graph.Nodes[key] = node
	t.graph.Order = append(t.graph.Order, key)
	if !slices.Contains(parent.Children, key) {
		parent.Children = append(parent.Children, key)
	}

	if item.depth >= t.cfg.MaxDepth {
		return nil
	}
	source := t.source(item.ref.Ecosystem)
	if source == nil {
		return nil
	}

	meta, err := source.Metadata(ctx, item.ref.Name, resolveVersion(item.ref))
	if err != nil {
		log.Warnf("resolver: metadata for %s unavailable: %v", item.ref, err)
		node.Partial = true
		return nil
	}
	if node.Ref.ResolvedVersion == "" {
		node.Ref.ResolvedVersion = meta.Version
	}

	childPath := append(slices.Clone(item.path), item.ref.Name)
	names := make([]string, 0, len(meta.Dependencies))
	for name := range meta.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var next []queueItem
	for _, name := range names {
		next = append(next, queueItem{
			ref: inventory.PackageRef{
				Ecosystem:   item.ref.Ecosystem,
				Name:        name,
				VersionSpec: meta.Dependencies[name],
			},
			depth:  item.depth + 1,
			path:   childPath,
			parent: key,
		})
	}
	return next
}

func (t *traversal) source(eco inventory.Ecosystem) MetadataSource {
	switch eco {
	case inventory.EcosystemNPM:
		return t.cfg.NPM
	case inventory.EcosystemPyPI:
		return t.cfg.PyPI
	}
	return nil
}

// recordCycle stores a cycle once per distinct unordered node set.
func (t *traversal) recordCycle(path []string) {
	names := slices.Clone(path[:len(path)-1])
	slices.Sort(names)
	key := strings.Join(names, "\x00")
	if t.cycleSeen[key] {
		return
	}
	t.cycleSeen[key] = true
	severity := inventory.SeverityLow
	if len(names) > 2 {
		severity = inventory.SeverityMedium
	}
	t.graph.Cycles = append(t.graph.Cycles, Cycle{Path: slices.Clone(path), Severity: severity})
	log.Infof("resolver: circular dependency: %s", strings.Join(path, " -> "))
}

// finishConflicts emits one conflict entry per package name that was
// observed with two or more distinct version specs.
func (t *traversal) finishConflicts() {
	keys := make([]string, 0, len(t.observations))
	for key := range t.observations {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		obs := t.observations[key]
		specs := map[string][]string{} // spec -> first path seen
		var order []string
		for _, o := range obs {
			if _, ok := specs[o.spec]; !ok {
				specs[o.spec] = o.path
				order = append(order, o.spec)
			}
		}
		if len(order) < 2 {
			continue
		}
		conflict := Conflict{Name: t.graph.Nodes[key].Ref.Name}
		for _, spec := range order {
			conflict.ConflictingVersions = append(conflict.ConflictingVersions, spec)
			conflict.Paths = append(conflict.Paths, specs[spec])
		}
		t.graph.Conflicts = append(t.graph.Conflicts, conflict)
	}
}

// resolveVersion picks the concrete version to ask the registry about.
// npm ranges resolve to their minimum satisfying version; anything
// unresolvable is left to the registry's latest.
func resolveVersion(ref inventory.PackageRef) string {
	if ref.ResolvedVersion != "" {
		return ref.ResolvedVersion
	}
	if ref.Ecosystem == inventory.EcosystemNPM && ref.VersionSpec != "" {
		c, err := semver.NPM.ParseConstraint(ref.VersionSpec)
		if err != nil {
			return ""
		}
		v, err := c.CalculateMinVersion()
		if err != nil {
			return ""
		}
		return v.Canon(false)
	}
	return ""
}
