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
	"io"
	"regexp"

	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

var (
	// reInstallRequires captures the install_requires list literal. Only a
	// static list of string literals is supported; anything computed at
	// runtime is invisible to a static scan.
	reInstallRequires = regexp.MustCompile(`(?s)install_requires\s*=\s*\[(.*?)\]`)
	reStringLiteral   = regexp.MustCompile(`['"]([^'"]+)['"]`)
	// reCmdclass detects custom install-stage command classes, the hook
	// point install-time attacks use in setup.py.
	reCmdclass = regexp.MustCompile(`cmdclass\s*=\s*{[^}]*['"](install|develop|egg_info|build_py)['"]`)
)

// ParseSetupPy statically extracts install_requires entries from a
// setup.py. The source is never executed; it is carried along for the
// install-script pattern scan, which also flags custom cmdclass hooks.
func ParseSetupPy(r io.Reader, path string) (*inventory.Manifest, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m := &inventory.Manifest{
		Ecosystem:     inventory.EcosystemPyPI,
		Path:          path,
		SetupPySource: string(src),
	}

	if match := reInstallRequires.FindSubmatch(src); match != nil {
		for _, lit := range reStringLiteral.FindAllSubmatch(match[1], -1) {
			ref, ok := parseRequirement(string(lit[1]))
			if !ok {
				log.Warnf("manifest: %s: skipping unrecognized install_requires entry %q", path, lit[1])
				continue
			}
			m.Packages = append(m.Packages, ref)
		}
	}

	if hook := reCmdclass.FindSubmatch(src); hook != nil {
		log.Infof("manifest: %s declares a custom %q command class", path, hook[1])
	}
	return m, nil
}

// HasInstallHook reports whether a setup.py source overrides an
// install-stage command class.
func HasInstallHook(setupPySource string) bool {
	return reCmdclass.MatchString(setupPySource)
}
