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

package inventory

import (
	"slices"
	"strings"
)

// FindingType classifies what kind of security observation a finding records.
type FindingType string

// FindingType values.
const (
	FindingVulnerability     FindingType = "vulnerability"
	FindingMaliciousPackage  FindingType = "malicious_package"
	FindingTyposquat         FindingType = "typosquat"
	FindingLowReputation     FindingType = "low_reputation"
	FindingMaliciousScript   FindingType = "malicious_script"
	FindingSupplyChainAttack FindingType = "supply_chain_attack"
	FindingCodeAnomaly       FindingType = "code_anomaly"
)

// DetectionMethod records which layer produced a finding.
type DetectionMethod string

// DetectionMethod values.
const (
	DetectionRuleBased DetectionMethod = "rule_based"
	DetectionAgent     DetectionMethod = "agent"
)

// Finding is one normalized record of a security-relevant observation
// about a specific package version.
type Finding struct {
	PackageName     string          `json:"package_name"`
	PackageVersion  string          `json:"package_version"`
	Ecosystem       Ecosystem       `json:"ecosystem"`
	Type            FindingType     `json:"finding_type"`
	Severity        Severity        `json:"severity"`
	Confidence      float64         `json:"confidence"`
	Evidence        []string        `json:"evidence"`
	Remediation     []string        `json:"remediation"`
	Source          string          `json:"source"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	Extra           map[string]any  `json:"extra,omitempty"`
}

// dedupeKey identifies findings that describe the same observation.
func (f *Finding) dedupeKey() string {
	return strings.Join([]string{f.PackageName, f.PackageVersion, string(f.Type), string(f.Severity)}, "\x00")
}

// MergeFindings deduplicates findings by (name, version, type, severity),
// merging evidence and keeping the highest confidence. Input order of first
// occurrence is preserved.
func MergeFindings(findings []*Finding) []*Finding {
	seen := map[string]*Finding{}
	var result []*Finding
	for _, f := range findings {
		key := f.dedupeKey()
		prev, ok := seen[key]
		if !ok {
			seen[key] = f
			result = append(result, f)
			continue
		}
		for _, ev := range f.Evidence {
			if !slices.Contains(prev.Evidence, ev) {
				prev.Evidence = append(prev.Evidence, ev)
			}
		}
		for _, r := range f.Remediation {
			if !slices.Contains(prev.Remediation, r) {
				prev.Remediation = append(prev.Remediation, r)
			}
		}
		if f.Confidence > prev.Confidence {
			prev.Confidence = f.Confidence
		}
	}
	return result
}

// SortFindings orders findings by severity (critical first) then by
// confidence descending. The sort is stable so equal findings keep their
// discovery order.
func SortFindings(findings []*Finding) {
	slices.SortStableFunc(findings, func(a, b *Finding) int {
		if d := b.Severity.Rank() - a.Severity.Rank(); d != 0 {
			return d
		}
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
}

// HighestSeverity returns the highest severity among the given findings,
// or the empty severity if there are none.
func HighestSeverity(findings []*Finding) Severity {
	var max Severity
	for _, f := range findings {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max
}
