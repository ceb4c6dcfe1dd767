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

package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

// reValidNPMName matches names the npm registry accepts, including scopes.
var reValidNPMName = regexp.MustCompile(`^(@[a-z0-9-~][a-z0-9-._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

// ParsePackageJSON parses a package.json into a normalized manifest.
// devDependencies are included unless disabled in cfg; both groups share
// the same treatment downstream, the distinction is kept in the spec only.
func ParsePackageJSON(r io.Reader, path string, cfg Config) (*inventory.Manifest, error) {
	var p packageJSON
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	m := &inventory.Manifest{
		Ecosystem: inventory.EcosystemNPM,
		Path:      path,
		Scripts:   p.Scripts,
	}
	addNPMDeps(m, p.Dependencies, path)
	if cfg.IncludeDevDependencies {
		addNPMDeps(m, p.DevDependencies, path)
	}
	return m, nil
}

func addNPMDeps(m *inventory.Manifest, deps map[string]string, path string) {
	for name, spec := range deps {
		if !reValidNPMName.MatchString(name) {
			log.Warnf("manifest: %s: skipping invalid npm package name %q", path, name)
			continue
		}
		ref := inventory.PackageRef{
			Ecosystem:   inventory.EcosystemNPM,
			Name:        name,
			VersionSpec: spec,
		}
		// An exact version pin needs no registry resolution.
		if isExactNPMVersion(spec) {
			ref.ResolvedVersion = spec
		}
		m.Packages = append(m.Packages, ref)
	}
}

var reExactNPMVersion = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z-.]+)?$`)

func isExactNPMVersion(spec string) bool {
	return reExactNPMVersion.MatchString(spec)
}
