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

// Package supplychainagent is the conditional stage that compares
// risk-flagged packages against known supply-chain attack shapes. It is
// gated on the reputation layer having raised one of the risk factors
// attacks historically exhibit.
package supplychainagent

import (
	"context"
	"fmt"
	"slices"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/inventory"
)

// Name of this agent.
const Name = "supply_chain"

// gatingRiskFactors are the reputation risk factors that open this
// stage's gate.
var gatingRiskFactors = []string{
	"abandoned",
	"maintainer_change_recent",
	"publishing_pattern_anomaly",
	"suspicious_patterns",
}

// PatternMatch is one attack-shape similarity.
type PatternMatch struct {
	PatternName string  `json:"pattern_name"`
	Similarity  float64 `json:"similarity"`
}

// PackageAnalysis is the per-package output.
type PackageAnalysis struct {
	Ref                    inventory.PackageRef `json:"package"`
	SupplyChainIndicators  []string             `json:"supply_chain_indicators"`
	AttackPatternMatches   []PatternMatch       `json:"attack_pattern_matches"`
	AttackLikelihood       string               `json:"attack_likelihood"`
	Confidence             float64              `json:"confidence"`
}

// Data is the agent's result payload.
type Data struct {
	Packages []*PackageAnalysis `json:"packages"`
}

// AttacksDetected counts packages with medium or high attack likelihood.
func (d *Data) AttacksDetected() int {
	n := 0
	for _, p := range d.Packages {
		if p.AttackLikelihood != "low" {
			n++
		}
	}
	return n
}

// Agent analyzes risk-flagged packages for supply-chain attack shapes.
type Agent struct{}

// New creates the agent.
func New() *Agent { return &Agent{} }

// Name implements agent.Agent.
func (a *Agent) Name() string { return Name }

// Gate reports whether any package carries a gating risk factor.
func Gate(in *agent.Context) (bool, string) {
	for _, rec := range reputations(in) {
		for _, factor := range gatingRiskFactors {
			if rec.HasRiskFactor(factor) {
				return true, ""
			}
		}
	}
	return false, "no package carries a supply-chain risk factor"
}

// reputations merges rule-layer records with the reputation agent's.
func reputations(in *agent.Context) map[string]*inventory.ReputationRecord {
	merged := map[string]*inventory.ReputationRecord{}
	for key, rec := range in.Reputations {
		merged[key] = rec
	}
	type recordSource interface {
		Records() map[string]*inventory.ReputationRecord
	}
	if data, ok := in.ResultData("reputation").(recordSource); ok {
		for key, rec := range data.Records() {
			merged[key] = rec
		}
	}
	return merged
}

// Analyze implements agent.Agent. The comparison is deterministic:
// indicator overlap against the documented shapes of historical registry
// attacks.
func (a *Agent) Analyze(ctx context.Context, in *agent.Context) *agent.Result {
	recs := reputations(in)
	data := &Data{}

	for _, ref := range in.Packages {
		rec, ok := recs[string(ref.Ecosystem)+"/"+ref.Name]
		if !ok {
			continue
		}
		var present []string
		for _, factor := range gatingRiskFactors {
			if rec.HasRiskFactor(factor) {
				present = append(present, factor)
			}
		}
		if len(present) == 0 {
			continue
		}
		data.Packages = append(data.Packages, analyze(ref, rec, present, in))
	}

	if err := ctx.Err(); err != nil {
		return agent.Failed(Name, err)
	}
	return &agent.Result{AgentName: Name, Status: agent.StatusSuccess, Data: data}
}

// attackShape is the indicator profile of one historical attack class.
type attackShape struct {
	name       string
	indicators []string
}

// attackShapes the comparison runs against. Indicators reference both
// reputation risk factors and rule-layer finding types.
var attackShapes = []attackShape{
	{
		name:       "account_takeover_injection",
		indicators: []string{"maintainer_change_recent", "malicious_script", "new_release_after_dormancy"},
	},
	{
		name:       "abandoned_package_adoption",
		indicators: []string{"abandoned", "maintainer_change_recent", "suspicious_patterns"},
	},
	{
		name:       "typosquat_campaign",
		indicators: []string{"typosquat", "new_package", "suspicious_patterns"},
	},
	{
		name:       "dependency_confusion",
		indicators: []string{"new_package", "publishing_pattern_anomaly", "low_downloads"},
	},
}

func analyze(ref inventory.PackageRef, rec *inventory.ReputationRecord, present []string, in *agent.Context) *PackageAnalysis {
	indicators := slices.Clone(present)
	for _, f := range in.InitialFindings {
		if f.PackageName == ref.Name && (f.Type == inventory.FindingTyposquat || f.Type == inventory.FindingMaliciousScript) {
			indicators = append(indicators, string(f.Type))
		}
	}
	if rec.HasRiskFactor("new_package") {
		indicators = append(indicators, "new_package")
	}
	if rec.HasRiskFactor("low_downloads") {
		indicators = append(indicators, "low_downloads")
	}

	p := &PackageAnalysis{
		Ref:                   ref,
		SupplyChainIndicators: indicators,
		Confidence:            rec.Confidence,
	}
	best := 0.0
	for _, shape := range attackShapes {
		matched := 0
		for _, ind := range shape.indicators {
			if slices.Contains(indicators, ind) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		similarity := float64(matched) / float64(len(shape.indicators))
		p.AttackPatternMatches = append(p.AttackPatternMatches, PatternMatch{
			PatternName: shape.name,
			Similarity:  similarity,
		})
		if similarity > best {
			best = similarity
		}
	}
	switch {
	case best >= 0.66:
		p.AttackLikelihood = "high"
	case best >= 0.34:
		p.AttackLikelihood = "medium"
	default:
		p.AttackLikelihood = "low"
	}
	return p
}

// Findings converts medium and high likelihood analyses into findings.
func (d *Data) Findings() []*inventory.Finding {
	var findings []*inventory.Finding
	for _, p := range d.Packages {
		if p.AttackLikelihood == "low" {
			continue
		}
		sev := inventory.SeverityMedium
		if p.AttackLikelihood == "high" {
			sev = inventory.SeverityHigh
		}
		findings = append(findings, &inventory.Finding{
			PackageName:     p.Ref.Name,
			PackageVersion:  p.Ref.Version(),
			Ecosystem:       p.Ref.Ecosystem,
			Type:            inventory.FindingSupplyChainAttack,
			Severity:        sev,
			Confidence:      p.Confidence,
			Evidence:        []string{fmt.Sprintf("supply-chain indicators: %v", p.SupplyChainIndicators)},
			Remediation:     []string{"verify the package's recent releases and maintainer history before upgrading"},
			Source:          Name,
			DetectionMethod: inventory.DetectionAgent,
		})
	}
	return findings
}
