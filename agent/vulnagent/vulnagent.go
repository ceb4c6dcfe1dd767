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

// Package vulnagent is the vulnerability analysis stage: a parallel OSV
// batch query over the resolved packages, optionally enriched with a
// model assessment for packages that turned out vulnerable.
package vulnagent

import (
	"context"
	"fmt"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/clients/llm"
	"github.com/vishu-2s/depscan/clients/osvdev"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

// Name of this agent.
const Name = "vulnerability"

// DefaultLLMBudget is the package count above which per-package LLM
// enrichment is skipped to keep run time and spend bounded.
const DefaultLLMBudget = 20

// Config configures the agent.
type Config struct {
	OSV *osvdev.Client
	// LLM is optional; nil or unconfigured disables enrichment.
	LLM       *llm.Client
	LLMBudget int
}

// DefaultConfig returns defaults with a default OSV client and no LLM.
func DefaultConfig() Config {
	return Config{
		OSV:       osvdev.New(osvdev.DefaultConfig()),
		LLMBudget: DefaultLLMBudget,
	}
}

// Assessment is the model's judgement of one vulnerable package.
type Assessment struct {
	ExploitationLikelihood string   `json:"exploitation_likelihood"`
	BusinessImpact         string   `json:"business_impact"`
	RecommendedAction      string   `json:"recommended_action"`
	KeyConcerns            []string `json:"key_concerns"`
	RiskScore              float64  `json:"risk_score"`
}

// PackageReport is the per-package output.
type PackageReport struct {
	Ref                inventory.PackageRef             `json:"package"`
	Vulnerabilities    []*inventory.VulnerabilityRecord `json:"vulnerabilities"`
	VulnerabilityCount int                              `json:"vulnerability_count"`
	HighestSeverity    inventory.Severity               `json:"highest_severity,omitempty"`
	Confidence         float64                          `json:"confidence"`
	Error              string                           `json:"error,omitempty"`
	LLMAssessment      *Assessment                      `json:"llm_assessment,omitempty"`
}

// Data is the agent's result payload.
type Data struct {
	Packages []*PackageReport `json:"packages"`
	// Offline reports that the OSV API was unreachable and no queries ran.
	Offline bool `json:"offline"`
}

// Agent queries OSV for the resolved package set.
type Agent struct {
	cfg Config
}

// New creates the agent.
func New(cfg Config) *Agent {
	if cfg.OSV == nil {
		cfg.OSV = osvdev.New(osvdev.DefaultConfig())
	}
	if cfg.LLMBudget <= 0 {
		cfg.LLMBudget = DefaultLLMBudget
	}
	return &Agent{cfg: cfg}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return Name }

// Analyze implements agent.Agent. An offline OSV API is a successful
// empty result, not a failure; per-package query errors are recorded on
// their entries.
func (a *Agent) Analyze(ctx context.Context, in *agent.Context) *agent.Result {
	batch := a.cfg.OSV.QueryBatch(ctx, in.Packages)
	if err := ctx.Err(); err != nil {
		return agent.Failed(Name, err)
	}

	data := &Data{Offline: batch.Offline}
	for _, r := range batch.Results {
		report := &PackageReport{
			Ref:                r.Ref,
			Vulnerabilities:    r.Vulns,
			VulnerabilityCount: len(r.Vulns),
			Confidence:         0.9,
			Error:              r.Err,
		}
		report.HighestSeverity = highestVulnSeverity(r.Vulns)
		data.Packages = append(data.Packages, report)
	}

	a.enrich(ctx, data)
	return &agent.Result{AgentName: Name, Status: agent.StatusSuccess, Data: data}
}

func highestVulnSeverity(vulns []*inventory.VulnerabilityRecord) inventory.Severity {
	var max inventory.Severity
	for _, v := range vulns {
		if v.Severity.Rank() > max.Rank() {
			max = v.Severity
		}
	}
	return max
}

const assessmentSystemPrompt = `You are a security analyst assessing a vulnerable software dependency.
Respond with a JSON object: {"exploitation_likelihood": "low"|"medium"|"high",
"business_impact": string, "recommended_action": string,
"key_concerns": [string], "risk_score": number from 1 to 10}.`

// enrich asks the model to assess each vulnerable package. Skipped
// entirely when no credentials are configured or the package count
// exceeds the budget; individual failures only cost that package its
// assessment.
func (a *Agent) enrich(ctx context.Context, data *Data) {
	if !a.cfg.LLM.Available() || data.Offline {
		return
	}
	if len(data.Packages) > a.cfg.LLMBudget {
		log.Infof("vulnagent: %d packages exceeds LLM budget %d, skipping enrichment",
			len(data.Packages), a.cfg.LLMBudget)
		return
	}
	for _, report := range data.Packages {
		if len(report.Vulnerabilities) == 0 {
			continue
		}
		var assessment Assessment
		if err := a.cfg.LLM.GenerateObject(ctx, assessmentSystemPrompt, assessmentPrompt(report), &assessment); err != nil {
			log.Warnf("vulnagent: assessment for %s failed: %v", report.Ref, err)
			continue
		}
		report.LLMAssessment = &assessment
	}
}

func assessmentPrompt(report *PackageReport) string {
	prompt := fmt.Sprintf("Package %s has %d known vulnerabilities:\n", report.Ref, report.VulnerabilityCount)
	for _, v := range report.Vulnerabilities {
		prompt += fmt.Sprintf("- %s (%s): %s\n", v.ID, v.Severity, v.Summary)
	}
	return prompt
}

// Findings converts the agent data to normalized findings, one per
// vulnerability.
func (d *Data) Findings() []*inventory.Finding {
	var findings []*inventory.Finding
	for _, report := range d.Packages {
		for _, v := range report.Vulnerabilities {
			fixed := "no fixed version published yet"
			if len(v.FixedVersions) > 0 {
				fixed = "upgrade to " + v.FixedVersions[0]
			}
			findings = append(findings, &inventory.Finding{
				PackageName:     report.Ref.Name,
				PackageVersion:  report.Ref.Version(),
				Ecosystem:       report.Ref.Ecosystem,
				Type:            inventory.FindingVulnerability,
				Severity:        v.Severity,
				Confidence:      report.Confidence,
				Evidence:        []string{fmt.Sprintf("%s: %s", v.ID, v.Summary)},
				Remediation:     []string{fixed},
				Source:          "osv_api",
				DetectionMethod: inventory.DetectionAgent,
				Extra:           map[string]any{"vulnerability_id": v.ID},
			})
		}
	}
	return findings
}
