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

package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vishu-2s/depscan/inventory"
)

// Body is the synthesized portion of the report: the parts either the
// synthesis agent or the deterministic fallback produces.
type Body struct {
	Summary          Summary          `json:"summary"`
	SecurityFindings SecurityFindings `json:"security_findings"`
	Recommendations  Recommendations  `json:"recommendations"`
	RiskAssessment   *RiskAssessment  `json:"risk_assessment"`
}

// Input is everything the synthesizer needs: the resolved packages and
// the accumulated per-package data, keyed by "ecosystem/name".
type Input struct {
	Packages        []inventory.PackageRef
	Findings        []*inventory.Finding
	Vulnerabilities map[string][]*inventory.VulnerabilityRecord
	Reputations     map[string]*inventory.ReputationRecord
}

func packageKey(eco inventory.Ecosystem, name string) string {
	return string(eco) + "/" + name
}

// Synthesize builds the report body deterministically. Its output is
// structurally identical to a successful model synthesis, so downstream
// consumers cannot tell which path produced it.
func Synthesize(in *Input) *Body {
	groups := groupFindings(in)

	body := &Body{
		SecurityFindings: SecurityFindings{Packages: groups},
		Summary:          summarize(len(in.Packages), groups),
	}
	body.Recommendations = recommend(groups, body.Summary)
	body.RiskAssessment = assess(groups)
	return body
}

// groupFindings merges all findings into per-package groups, attaches
// vulnerability and reputation data, and sorts the result.
func groupFindings(in *Input) []*PackageFindings {
	byKey := map[string]*PackageFindings{}
	var order []string

	group := func(eco inventory.Ecosystem, name, version string) *PackageFindings {
		key := packageKey(eco, name)
		if g, ok := byKey[key]; ok {
			if g.Version == "" {
				g.Version = version
			}
			return g
		}
		g := &PackageFindings{
			Name:      name,
			Version:   version,
			Ecosystem: string(eco),
			Findings:  []*inventory.Finding{},
		}
		byKey[key] = g
		order = append(order, key)
		return g
	}

	for _, ref := range in.Packages {
		group(ref.Ecosystem, ref.Name, ref.Version())
	}
	for _, f := range in.Findings {
		g := group(f.Ecosystem, f.PackageName, f.PackageVersion)
		g.Findings = append(g.Findings, f)
	}

	for key, g := range byKey {
		if vulns := in.Vulnerabilities[key]; len(vulns) > 0 {
			g.Vulnerabilities = vulns
		}
		if rep := in.Reputations[key]; rep != nil {
			score := rep.Score
			g.ReputationScore = &score
			g.RiskFactors = rep.RiskFactors
		}
		g.Findings = inventory.MergeFindings(g.Findings)
		inventory.SortFindings(g.Findings)
		g.RiskScore, g.RiskLevel = riskOf(g)
	}

	groups := make([]*PackageFindings, 0, len(order))
	for _, key := range order {
		groups = append(groups, byKey[key])
	}
	// Highest-severity packages first, name breaks ties.
	slices.SortStableFunc(groups, func(a, b *PackageFindings) int {
		if d := inventory.HighestSeverity(b.Findings).Rank() - inventory.HighestSeverity(a.Findings).Rank(); d != 0 {
			return d
		}
		return strings.Compare(a.Name, b.Name)
	})
	return groups
}

// riskOf derives a package's overall risk from its worst finding and its
// reputation score.
func riskOf(g *PackageFindings) (float64, string) {
	score := 0.1
	switch inventory.HighestSeverity(g.Findings) {
	case inventory.SeverityCritical:
		score = 0.9
	case inventory.SeverityHigh:
		score = 0.7
	case inventory.SeverityMedium:
		score = 0.5
	case inventory.SeverityLow:
		score = 0.3
	}
	if g.ReputationScore != nil {
		if repRisk := (1 - *g.ReputationScore) * 0.8; repRisk > score {
			score = repRisk
		}
	}
	switch {
	case score >= 0.8:
		return score, "critical"
	case score >= 0.6:
		return score, "high"
	case score >= 0.4:
		return score, "medium"
	default:
		return score, "low"
	}
}

func summarize(totalPackages int, groups []*PackageFindings) Summary {
	s := Summary{TotalPackages: totalPackages}
	for _, g := range groups {
		if len(g.Findings) == 0 {
			continue
		}
		s.PackagesWithFindings++
		for _, f := range g.Findings {
			s.TotalFindings++
			switch f.Severity {
			case inventory.SeverityCritical:
				s.CriticalFindings++
			case inventory.SeverityHigh:
				s.HighFindings++
			case inventory.SeverityMedium:
				s.MediumFindings++
			case inventory.SeverityLow:
				s.LowFindings++
			}
		}
	}
	return s
}

// recommend emits prioritized advice: critical packages by name first,
// then high severity, then reputation and graph concerns, then the
// standing preventive and monitoring items.
func recommend(groups []*PackageFindings, s Summary) Recommendations {
	rec := Recommendations{}

	if names := namesWithSeverity(groups, inventory.SeverityCritical); len(names) > 0 {
		rec.ImmediateActions = append(rec.ImmediateActions,
			fmt.Sprintf("Remove or replace %s immediately: critical security findings", nameList(names, 3)))
	}
	if names := namesWithSeverity(groups, inventory.SeverityHigh); len(names) > 0 {
		rec.ImmediateActions = append(rec.ImmediateActions,
			fmt.Sprintf("Upgrade or audit %s: high-severity findings", nameList(names, 3)))
	}
	if s.CriticalFindings == 0 && s.HighFindings == 0 && s.TotalFindings > 0 {
		rec.ImmediateActions = append(rec.ImmediateActions,
			"Review the reported medium and low severity findings")
	}
	if len(rec.ImmediateActions) == 0 {
		rec.ImmediateActions = append(rec.ImmediateActions,
			"No immediate action required; no significant findings")
	}

	for _, g := range groups {
		if g.ReputationScore != nil && *g.ReputationScore < 0.3 {
			rec.PreventiveMeasures = append(rec.PreventiveMeasures,
				fmt.Sprintf("Evaluate alternatives to %s (low reputation score %.2f)", g.Name, *g.ReputationScore))
		}
	}
	rec.PreventiveMeasures = append(rec.PreventiveMeasures,
		"Pin dependency versions and commit a lockfile",
		"Restrict install scripts in CI (npm --ignore-scripts, pip --no-build-isolation review)")

	rec.Monitoring = append(rec.Monitoring,
		"Re-run dependency analysis on every dependency change",
		"Subscribe to security advisories for your direct dependencies")
	return rec
}

func namesWithSeverity(groups []*PackageFindings, sev inventory.Severity) []string {
	var names []string
	for _, g := range groups {
		for _, f := range g.Findings {
			if f.Severity == sev {
				names = append(names, g.Name)
				break
			}
		}
	}
	return names
}

// nameList renders up to max names, then "and N more".
func nameList(names []string, max int) string {
	if len(names) <= max {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(names[:max], ", "), len(names)-max)
}

func assess(groups []*PackageFindings) *RiskAssessment {
	var all []*inventory.Finding
	for _, g := range groups {
		all = append(all, g.Findings...)
	}
	level := "low"
	text := "No significant security issues were identified in the analyzed dependencies."
	switch inventory.HighestSeverity(all) {
	case inventory.SeverityCritical:
		level = "critical"
		text = "Critical security issues were found; treat this dependency set as compromised until remediated."
	case inventory.SeverityHigh:
		level = "high"
		text = "High-severity issues were found; remediation should be scheduled promptly."
	case inventory.SeverityMedium:
		level = "medium"
		text = "Moderate issues were found; review them during normal maintenance."
	}
	return &RiskAssessment{OverallRiskLevel: level, Assessment: text}
}

// ValidateBody checks a synthesized body against the schema contract.
// The summary must equal the counts recomputed from the grouped
// findings; a mismatch invalidates the body.
func ValidateBody(b *Body) error {
	if b == nil {
		return fmt.Errorf("report body is nil")
	}
	for _, g := range b.SecurityFindings.Packages {
		if g.Name == "" {
			return fmt.Errorf("security_findings entry with empty package name")
		}
		for _, f := range g.Findings {
			if f.Severity.Rank() < 0 {
				return fmt.Errorf("package %s: invalid severity %q", g.Name, f.Severity)
			}
			if f.Confidence < 0 || f.Confidence > 1 {
				return fmt.Errorf("package %s: confidence %v out of range", g.Name, f.Confidence)
			}
		}
	}
	want := summarize(b.Summary.TotalPackages, b.SecurityFindings.Packages)
	if b.Summary != want {
		return fmt.Errorf("summary counts disagree with grouped findings")
	}
	if len(b.Recommendations.ImmediateActions) == 0 {
		return fmt.Errorf("recommendations.immediate_actions is empty")
	}
	return nil
}
