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

// Package synthagent is the final stage: it asks the model to compose
// the report body from everything earlier stages produced, and validates
// the result against the schema contract. Any failure here is terminal
// for the stage; the orchestrator then runs the deterministic fallback
// synthesizer over the same input.
package synthagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/agent/codeagent"
	"github.com/vishu-2s/depscan/agent/reputationagent"
	"github.com/vishu-2s/depscan/agent/supplychainagent"
	"github.com/vishu-2s/depscan/agent/vulnagent"
	"github.com/vishu-2s/depscan/clients/llm"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/report"
)

// Name of this agent.
const Name = "synthesis"

// Config configures the agent.
type Config struct {
	LLM *llm.Client
}

// Agent synthesizes the final report body.
type Agent struct {
	cfg Config
}

// New creates the agent.
func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return Name }

// BuildInput assembles the synthesizer input from the shared context:
// every finding any layer produced, plus the per-package vulnerability
// and reputation data. The orchestrator reuses it for the deterministic
// fallback, so both paths see identical input.
func BuildInput(in *agent.Context) *report.Input {
	input := &report.Input{
		Packages:        in.Packages,
		Vulnerabilities: map[string][]*inventory.VulnerabilityRecord{},
		Reputations:     map[string]*inventory.ReputationRecord{},
	}
	input.Findings = append(input.Findings, in.InitialFindings...)
	for key, rec := range in.Reputations {
		input.Reputations[key] = rec
	}

	if data, ok := in.ResultData(vulnagent.Name).(*vulnagent.Data); ok {
		input.Findings = append(input.Findings, data.Findings()...)
		for _, p := range data.Packages {
			if len(p.Vulnerabilities) > 0 {
				input.Vulnerabilities[string(p.Ref.Ecosystem)+"/"+p.Ref.Name] = p.Vulnerabilities
			}
		}
	}
	if data, ok := in.ResultData(reputationagent.Name).(*reputationagent.Data); ok {
		input.Findings = append(input.Findings, data.Findings()...)
		for key, rec := range data.Records() {
			input.Reputations[key] = rec
		}
	}
	if data, ok := in.ResultData(codeagent.Name).(*codeagent.Data); ok {
		input.Findings = append(input.Findings, data.Findings(in.Manifest)...)
	}
	if data, ok := in.ResultData(supplychainagent.Name).(*supplychainagent.Data); ok {
		input.Findings = append(input.Findings, data.Findings()...)
	}

	input.Findings = inventory.MergeFindings(input.Findings)
	return input
}

const synthSystemPrompt = `You are composing the final report of a dependency security analysis.
Respond with a JSON object with exactly these top-level keys:
"summary", "security_findings", "recommendations", "risk_assessment".
Copy the provided summary counts and security_findings groups verbatim;
write the recommendations (keys "immediate_actions", "preventive_measures",
"monitoring", each a list of strings) and the risk_assessment (keys
"overall_risk_level" and "assessment"). When critical findings exist, the
first immediate action must name the affected packages.`

// Analyze implements agent.Agent. The model is handed the
// deterministically grouped data and asked to write the judgement parts;
// its output must validate against the schema or the stage fails.
func (a *Agent) Analyze(ctx context.Context, in *agent.Context) *agent.Result {
	if !a.cfg.LLM.Available() {
		return agent.Failed(Name, llm.ErrUnavailable)
	}

	input := BuildInput(in)
	// Pre-group so the model only writes prose, not arithmetic.
	seed := report.Synthesize(input)
	seedJSON, err := json.Marshal(seed)
	if err != nil {
		return agent.Failed(Name, err)
	}

	var body report.Body
	user := fmt.Sprintf("Analysis data:\n%s", seedJSON)
	if err := a.cfg.LLM.GenerateObject(ctx, synthSystemPrompt, user, &body); err != nil {
		return agent.Failed(Name, err)
	}
	if err := report.ValidateBody(&body); err != nil {
		return agent.Failed(Name, fmt.Errorf("%w: %v", llm.ErrInvalidResponse, err))
	}
	return &agent.Result{AgentName: Name, Status: agent.StatusSuccess, Data: &body}
}
