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

// Package scriptpattern scans install-time scripts (npm lifecycle hooks,
// setup.py sources) against a corpus of known attack patterns.
package scriptpattern

import (
	"sort"
	"strings"

	"github.com/vishu-2s/depscan/cache"
	"github.com/vishu-2s/depscan/inventory"
)

// Match is one attack-pattern hit on one script command.
type Match struct {
	Hook       string
	Command    string
	Category   string
	Severity   inventory.Severity
	Confidence float64
	Evidence   []string
}

// SetupPyHook is the pseudo-hook name used for setup.py sources. pip runs
// setup.py automatically, so it counts as dangerous.
const SetupPyHook = "setup.py"

// minCommandLength filters out trivial commands that cannot carry an
// attack ("ok", "true").
const minCommandLength = 4

// safeTools are well-known dev tools that trip substring patterns in
// their own arguments (test globs, config paths). A command whose first
// token is one of these is only flagged when a pattern matches its
// argument portion.
var safeTools = map[string]bool{
	"jest": true, "mocha": true, "pytest": true, "eslint": true,
	"tsc": true, "prettier": true, "vitest": true, "tox": true,
}

// ScanScripts matches every script command against the pattern corpus.
// Matches on dangerous hooks are escalated one severity level with
// confidence raised to at least 0.9, since those commands run without
// user action during install.
func ScanScripts(scripts map[string]string) []Match {
	hooks := make([]string, 0, len(scripts))
	for hook := range scripts {
		hooks = append(hooks, hook)
	}
	sort.Strings(hooks)

	var matches []Match
	for _, hook := range hooks {
		matches = append(matches, scanCommand(hook, scripts[hook])...)
	}
	return matches
}

// ScanSetupPy matches a setup.py source against the corpus. The whole
// source is treated as one dangerous-hook command.
func ScanSetupPy(source string) []Match {
	return scanCommand(SetupPyHook, source)
}

func scanCommand(hook, command string) []Match {
	trimmed := strings.TrimSpace(command)
	if len(trimmed) < minCommandLength {
		return nil
	}
	scanned := trimmed
	if fields := strings.Fields(trimmed); len(fields) > 0 && safeTools[fields[0]] {
		scanned = trimmed[len(fields[0]):]
	}

	dangerous := hook == SetupPyHook || inventory.IsDangerousHook(hook)
	var matches []Match
	for _, cat := range corpus {
		if !cat.matches(scanned) {
			continue
		}
		m := Match{
			Hook:       hook,
			Command:    trimmed,
			Category:   cat.name,
			Severity:   cat.severity,
			Confidence: cat.confidence,
			Evidence: []string{
				"hook: " + hook,
				"command: " + truncate(trimmed, 200),
				cat.description,
			},
		}
		if dangerous {
			m.Severity = m.Severity.Escalate()
			if m.Confidence < 0.9 {
				m.Confidence = 0.9
			}
			m.Evidence = append(m.Evidence, "runs automatically on install")
		}
		matches = append(matches, m)
	}
	return matches
}

// ComplexityScore estimates how obfuscated or convoluted a script is, on
// [0,1]. Scores at or above 0.5 warrant a closer look even without a
// pattern hit.
func ComplexityScore(command string) float64 {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return 0
	}
	score := 0.0
	if len(trimmed) > 200 {
		score += 0.2
	}
	if n := strings.Count(trimmed, "|") + strings.Count(trimmed, "&&") + strings.Count(trimmed, ";"); n >= 3 {
		score += 0.2
	} else if n >= 1 {
		score += 0.1
	}
	if strings.Contains(trimmed, "base64") || strings.Contains(trimmed, `\x`) ||
		strings.Contains(trimmed, "fromCharCode") {
		score += 0.3
	}
	if strings.Contains(trimmed, "eval") || strings.Contains(trimmed, "exec") {
		score += 0.2
	}
	if strings.Count(trimmed, "$") >= 3 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// ContentKey returns the cache key under which second-opinion analysis
// of a script is stored, so identical scripts are analyzed once.
func ContentKey(command string) string {
	return cache.Key("script", command)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
