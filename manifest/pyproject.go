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
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

type pyprojectTOML struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			// Poetry dependency values are either a version string or a
			// table ({version = "...", extras = [...]}).
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// ParsePyprojectTOML parses PEP 621 dependencies and Poetry dependency
// tables from a pyproject.toml.
func ParsePyprojectTOML(r io.Reader, path string) (*inventory.Manifest, error) {
	var p pyprojectTOML
	if _, err := toml.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	m := &inventory.Manifest{
		Ecosystem: inventory.EcosystemPyPI,
		Path:      path,
	}

	for _, dep := range p.Project.Dependencies {
		ref, ok := parseRequirement(dep)
		if !ok {
			log.Warnf("manifest: %s: skipping unrecognized dependency %q", path, dep)
			continue
		}
		m.Packages = append(m.Packages, ref)
	}

	for name, val := range p.Tool.Poetry.Dependencies {
		if name == "python" {
			// The interpreter constraint, not a package.
			continue
		}
		spec := ""
		switch v := val.(type) {
		case string:
			spec = v
		case map[string]any:
			if s, ok := v["version"].(string); ok {
				spec = s
			}
		default:
			log.Warnf("manifest: %s: skipping poetry dependency %q with unsupported value", path, name)
			continue
		}
		m.Packages = append(m.Packages, inventory.PackageRef{
			Ecosystem:   inventory.EcosystemPyPI,
			Name:        normalizePyPIName(name),
			VersionSpec: spec,
		})
	}
	return m, nil
}
