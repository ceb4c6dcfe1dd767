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

// Package inventory stores the value types that flow through a depscan
// analysis: package references, manifests, findings and the records the
// scoring layers attach to packages.
package inventory

import "fmt"

// Ecosystem identifies the package registry a package belongs to.
type Ecosystem string

// The ecosystems depscan understands.
const (
	EcosystemNPM  Ecosystem = "npm"
	EcosystemPyPI Ecosystem = "pypi"
)

// ParseEcosystem maps a registry name to an Ecosystem. Casing and the
// OSV spelling "PyPI" are accepted.
func ParseEcosystem(s string) (Ecosystem, error) {
	switch s {
	case "npm", "NPM":
		return EcosystemNPM, nil
	case "pypi", "PyPI", "PYPI":
		return EcosystemPyPI, nil
	}
	return "", fmt.Errorf("unsupported ecosystem %q", s)
}

// OSVName returns the ecosystem name the OSV API expects.
func (e Ecosystem) OSVName() string {
	switch e {
	case EcosystemNPM:
		return "npm"
	case EcosystemPyPI:
		return "PyPI"
	}
	return string(e)
}

// PackageRef identifies a package within one ecosystem.
// VersionSpec preserves the raw constraint from the manifest;
// ResolvedVersion is set once a registry lookup or lockfile pins it.
type PackageRef struct {
	Ecosystem       Ecosystem `json:"ecosystem"`
	Name            string    `json:"name"`
	VersionSpec     string    `json:"version_spec,omitempty"`
	ResolvedVersion string    `json:"resolved_version,omitempty"`
}

// Version returns the resolved version if known, otherwise the raw spec.
func (r PackageRef) Version() string {
	if r.ResolvedVersion != "" {
		return r.ResolvedVersion
	}
	return r.VersionSpec
}

// String implements fmt.Stringer.
func (r PackageRef) String() string {
	return fmt.Sprintf("%s/%s@%s", r.Ecosystem, r.Name, r.Version())
}

// dangerousHooks are the npm lifecycle scripts that run automatically
// during `npm install`.
var dangerousHooks = map[string]bool{
	"preinstall":  true,
	"install":     true,
	"postinstall": true,
}

// IsDangerousHook reports whether the given npm lifecycle hook runs
// automatically on install.
func IsDangerousHook(hook string) bool {
	return dangerousHooks[hook]
}

// Manifest is the normalized form of a dependency manifest file.
type Manifest struct {
	Ecosystem Ecosystem
	// Path of the manifest file, relative to the project root.
	Path     string
	Packages []PackageRef
	// Scripts maps npm lifecycle hook names to their command strings.
	// Empty for Python manifests.
	Scripts map[string]string
	// SetupPySource holds the raw setup.py source when the manifest came
	// from one, for install-hook pattern scanning.
	SetupPySource string
}

// Append merges another manifest's packages and scripts into m.
func (m *Manifest) Append(other *Manifest) {
	m.Packages = append(m.Packages, other.Packages...)
	if len(other.Scripts) > 0 && m.Scripts == nil {
		m.Scripts = map[string]string{}
	}
	for hook, cmd := range other.Scripts {
		m.Scripts[hook] = cmd
	}
	if other.SetupPySource != "" {
		m.SetupPySource = other.SetupPySource
	}
}
