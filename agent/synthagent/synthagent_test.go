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

package synthagent

import (
	"context"
	"testing"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/agent/reputationagent"
	"github.com/vishu-2s/depscan/agent/vulnagent"
	"github.com/vishu-2s/depscan/clients/llm"
	"github.com/vishu-2s/depscan/inventory"
)

func npmRef(name, version string) inventory.PackageRef {
	return inventory.PackageRef{Ecosystem: inventory.EcosystemNPM, Name: name, ResolvedVersion: version}
}

func TestBuildInputMergesAllLayers(t *testing.T) {
	vuln := &vulnagent.Data{Packages: []*vulnagent.PackageReport{{
		Ref:        npmRef("vulnerable", "1.0.0"),
		Confidence: 0.9,
		Vulnerabilities: []*inventory.VulnerabilityRecord{
			{ID: "GHSA-1", Summary: "bad", Severity: inventory.SeverityHigh},
		},
	}}}
	rep := &reputationagent.Data{Packages: []*reputationagent.PackageReputation{{
		Ref: npmRef("shady", "0.0.1"),
		Record: &inventory.ReputationRecord{
			Score: 0.2, RiskLevel: inventory.RiskHigh, Confidence: 0.75, Reasoning: "score 0.20",
		},
	}}}
	in := &agent.Context{
		Packages: []inventory.PackageRef{npmRef("vulnerable", "1.0.0"), npmRef("shady", "0.0.1")},
		InitialFindings: []*inventory.Finding{{
			PackageName: "shady",
			Ecosystem:   inventory.EcosystemNPM,
			Type:        inventory.FindingTyposquat,
			Severity:    inventory.SeverityHigh,
			Confidence:  0.9,
		}},
		Reputations: map[string]*inventory.ReputationRecord{},
		Results: map[string]*agent.Result{
			vulnagent.Name:       {AgentName: vulnagent.Name, Status: agent.StatusSuccess, Data: vuln},
			reputationagent.Name: {AgentName: reputationagent.Name, Status: agent.StatusSuccess, Data: rep},
		},
	}

	input := BuildInput(in)
	if len(input.Packages) != 2 {
		t.Errorf("packages = %d, want 2", len(input.Packages))
	}
	// One rule-layer typosquat, one vulnerability finding, one
	// low-reputation finding.
	if len(input.Findings) != 3 {
		t.Errorf("findings = %d, want 3: %+v", len(input.Findings), input.Findings)
	}
	if len(input.Vulnerabilities["npm/vulnerable"]) != 1 {
		t.Errorf("vulnerabilities not keyed by package: %v", input.Vulnerabilities)
	}
	if input.Reputations["npm/shady"] == nil {
		t.Errorf("reputation records not merged: %v", input.Reputations)
	}
}

func TestBuildInputDeduplicatesFindings(t *testing.T) {
	dup := &inventory.Finding{
		PackageName: "x",
		Ecosystem:   inventory.EcosystemNPM,
		Type:        inventory.FindingMaliciousPackage,
		Severity:    inventory.SeverityCritical,
		Confidence:  0.95,
	}
	in := &agent.Context{
		InitialFindings: []*inventory.Finding{dup, dup},
	}
	input := BuildInput(in)
	if len(input.Findings) != 1 {
		t.Errorf("findings = %d, want duplicates merged", len(input.Findings))
	}
}

func TestAnalyzeFailsWithoutModel(t *testing.T) {
	a := New(Config{LLM: llm.New(llm.Config{})})
	res := a.Analyze(context.Background(), &agent.Context{})
	if res.Status != agent.StatusFailed {
		t.Errorf("status = %s, want FAILED so the fallback synthesizer runs", res.Status)
	}
	if res.ErrorType != agent.ErrorServiceUnavailable {
		t.Errorf("error type = %s, want service_unavailable", res.ErrorType)
	}
}
