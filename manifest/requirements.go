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
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

var (
	// Comments per pip's requirements file grammar.
	reReqComment = regexp.MustCompile(`(^|\s+)#.*$`)
	reReqExtras  = regexp.MustCompile(`\[[^\[\]]*\]`)
	reValidPyPkg = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
)

// pep508Operators in match order; three-char operators first so "===" is
// not cut as "==".
var pep508Operators = []string{"===", "==", ">=", "<=", "~=", "!=", ">", "<"}

// ParseRequirementsTxt parses a pip requirements file. Continuation lines
// are folded, comments and environment markers stripped, per-requirement
// options discarded. Lines that aren't plain requirements (e.g. -r
// includes, editable installs, URLs) are skipped with a warning.
func ParseRequirementsTxt(r io.Reader, path string) (*inventory.Manifest, error) {
	m := &inventory.Manifest{
		Ecosystem: inventory.EcosystemPyPI,
		Path:      path,
	}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := foldContinuations(s)
		line = reReqComment.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") {
			// Global and per-requirement pip options (-r, -e, --hash, ...)
			// aren't package requirements.
			log.Debugf("manifest: %s: skipping pip option line %q", path, line)
			continue
		}
		if strings.Contains(line, "://") {
			log.Warnf("manifest: %s: skipping URL requirement %q", path, line)
			continue
		}
		ref, ok := parseRequirement(line)
		if !ok {
			log.Warnf("manifest: %s: skipping unrecognized requirement %q", path, line)
			continue
		}
		m.Packages = append(m.Packages, ref)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// foldContinuations joins lines ending in a backslash.
func foldContinuations(s *bufio.Scanner) string {
	line := s.Text()
	for strings.HasSuffix(line, `\`) && s.Scan() {
		line = line[:len(line)-1] + s.Text()
	}
	return line
}

// parseRequirement splits one PEP 508 requirement into a package ref.
// Environment markers and extras are stripped; the raw constraint is kept
// as the version spec and an == pin also resolves the version.
func parseRequirement(line string) (inventory.PackageRef, bool) {
	// Strip environment markers ("; python_version < ...").
	line, _, _ = strings.Cut(line, ";")
	line = strings.ReplaceAll(line, " ", "")
	line = strings.ReplaceAll(line, "\t", "")
	line = reReqExtras.ReplaceAllString(line, "")
	if line == "" {
		return inventory.PackageRef{}, false
	}

	name := line
	spec := ""
	for i := 0; i < len(line); i++ {
		if strings.ContainsAny(string(line[i]), "=<>!~") {
			name, spec = line[:i], line[i:]
			break
		}
	}
	if !reValidPyPkg.MatchString(name) {
		return inventory.PackageRef{}, false
	}

	ref := inventory.PackageRef{
		Ecosystem:   inventory.EcosystemPyPI,
		Name:        normalizePyPIName(name),
		VersionSpec: spec,
	}
	if op, ver, ok := splitConstraint(spec); ok && (op == "==" || op == "===") && !strings.Contains(ver, "*") {
		ref.ResolvedVersion = ver
	}
	return ref, true
}

// splitConstraint splits a single-constraint spec into operator and
// version. Multi-constraint specs ("<2,>=1") return ok=false.
func splitConstraint(spec string) (op, version string, ok bool) {
	if spec == "" || strings.Contains(spec, ",") {
		return "", "", false
	}
	for _, o := range pep508Operators {
		if strings.HasPrefix(spec, o) {
			return o, spec[len(o):], true
		}
	}
	return "", "", false
}

// normalizePyPIName lowercases and collapses separator runs per PEP 503.
var reSeparatorRun = regexp.MustCompile(`[-_.]+`)

func normalizePyPIName(name string) string {
	return reSeparatorRun.ReplaceAllString(strings.ToLower(name), "-")
}
