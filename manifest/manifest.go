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

// Package manifest reads npm and Python dependency manifests and
// normalizes them into package lists. Parsers never execute manifest
// code; unrecognized entries are skipped with a warning, not an error.
package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

// ErrNoManifest is returned when a project directory contains none of the
// supported manifest files.
var ErrNoManifest = errors.New("no supported dependency manifest found")

// Config is the configuration for manifest parsing.
type Config struct {
	// IncludeDevDependencies includes npm devDependencies.
	IncludeDevDependencies bool
	// MaxFileSizeBytes caps the size of a manifest this parser will read.
	// Zero means no limit.
	MaxFileSizeBytes int64
}

// DefaultConfig returns the default parser configuration.
func DefaultConfig() Config {
	return Config{
		IncludeDevDependencies: true,
		MaxFileSizeBytes:       10 * 1024 * 1024,
	}
}

// skipDirs are directories never walked during manifest discovery.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
}

// Discover walks dir for supported manifest files and parses each one.
// Root-level manifests come first so the root package context wins on
// conflicts.
func Discover(dir string, cfg Config) ([]*inventory.Manifest, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("manifest: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if isManifestFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoManifest
	}

	var manifests []*inventory.Manifest
	for _, path := range paths {
		m, err := parseFile(path, dir, cfg)
		if err != nil {
			log.Warnf("manifest: cannot parse %s: %v", path, err)
			continue
		}
		if m != nil {
			manifests = append(manifests, m)
		}
	}
	if len(manifests) == 0 {
		return nil, ErrNoManifest
	}
	return manifests, nil
}

func isManifestFile(name string) bool {
	switch {
	case name == "package.json", name == "setup.py", name == "pyproject.toml":
		return true
	case strings.HasSuffix(name, ".txt") && strings.Contains(name, "requirements"):
		return true
	}
	return false
}

func parseFile(path, root string, cfg Config) (*inventory.Manifest, error) {
	if cfg.MaxFileSizeBytes > 0 {
		if info, err := os.Stat(path); err == nil && info.Size() > cfg.MaxFileSizeBytes {
			log.Warnf("manifest: %s exceeds size limit, skipping", path)
			return nil, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	switch name := filepath.Base(path); {
	case name == "package.json":
		return ParsePackageJSON(f, rel, cfg)
	case name == "setup.py":
		return ParseSetupPy(f, rel)
	case name == "pyproject.toml":
		return ParsePyprojectTOML(f, rel)
	default:
		return ParseRequirementsTxt(f, rel)
	}
}

// Merge combines the discovered manifests of one ecosystem into a single
// manifest. Packages seen in several files are kept once, first
// occurrence wins.
func Merge(manifests []*inventory.Manifest) *inventory.Manifest {
	if len(manifests) == 0 {
		return nil
	}
	merged := &inventory.Manifest{
		Ecosystem: manifests[0].Ecosystem,
		Path:      manifests[0].Path,
	}
	seen := map[string]bool{}
	for _, m := range manifests {
		for _, pkg := range m.Packages {
			key := string(pkg.Ecosystem) + "\x00" + pkg.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			merged.Packages = append(merged.Packages, pkg)
		}
		merged.Append(&inventory.Manifest{Scripts: m.Scripts, SetupPySource: m.SetupPySource})
	}
	return merged
}
