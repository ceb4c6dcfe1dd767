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

// Package codeagent is the conditional deep-inspection stage for
// install scripts. It re-examines scripts the rule layer flagged, or
// that look complex enough to hide something, with a model prompt
// carrying the attack taxonomy. Without a usable model it degrades to
// the pattern-only verdict.
package codeagent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/clients/llm"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
	"github.com/vishu-2s/depscan/scriptpattern"
)

// Name of this agent.
const Name = "code"

// ComplexityGate is the script complexity score at which a script
// warrants inspection even without a pattern hit.
const ComplexityGate = 0.5

// Config configures the agent.
type Config struct {
	LLM *llm.Client
}

// ScriptVerdict is the per-script output.
type ScriptVerdict struct {
	Hook                  string             `json:"hook"`
	Command               string             `json:"command"`
	ObfuscationDetected   []string           `json:"obfuscation_detected"`
	BehavioralIndicators  []string           `json:"behavioral_indicators"`
	CodeQualityAssessment string             `json:"code_quality_assessment"`
	Severity              inventory.Severity `json:"severity"`
	Confidence            float64            `json:"confidence"`
	// LLMUsed is false when the verdict came from the pattern layer only.
	LLMUsed bool `json:"llm_used"`
}

// Data is the agent's result payload.
type Data struct {
	Scripts []*ScriptVerdict `json:"scripts"`
}

// Agent inspects suspicious install scripts.
type Agent struct {
	cfg Config
}

// New creates the agent.
func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return Name }

// Gate reports whether this stage should run: a malicious_script finding
// exists, or some script scores at or above the complexity gate.
func Gate(in *agent.Context) (bool, string) {
	for _, f := range in.InitialFindings {
		if f.Type == inventory.FindingMaliciousScript {
			return true, ""
		}
	}
	for _, cmd := range suspectScripts(in) {
		if scriptpattern.ComplexityScore(cmd) >= ComplexityGate {
			return true, ""
		}
	}
	return false, "no malicious-script findings and no complex scripts"
}

// suspectScripts collects every script the project declares, keyed by
// hook name.
func suspectScripts(in *agent.Context) map[string]string {
	scripts := map[string]string{}
	if in.Manifest == nil {
		return scripts
	}
	for hook, cmd := range in.Manifest.Scripts {
		scripts[hook] = cmd
	}
	if in.Manifest.SetupPySource != "" {
		scripts[scriptpattern.SetupPyHook] = in.Manifest.SetupPySource
	}
	return scripts
}

// Analyze implements agent.Agent.
func (a *Agent) Analyze(ctx context.Context, in *agent.Context) *agent.Result {
	scripts := suspectScripts(in)
	hooks := make([]string, 0, len(scripts))
	for hook, cmd := range scripts {
		if a.interesting(in, hook, cmd) {
			hooks = append(hooks, hook)
		}
	}
	sort.Strings(hooks)

	data := &Data{}
	seen := map[string]*ScriptVerdict{}
	for _, hook := range hooks {
		cmd := scripts[hook]
		// Identical commands get one verdict per run.
		if prev, ok := seen[scriptpattern.ContentKey(cmd)]; ok {
			dup := *prev
			dup.Hook = hook
			data.Scripts = append(data.Scripts, &dup)
			continue
		}
		verdict := a.inspect(ctx, hook, cmd)
		seen[scriptpattern.ContentKey(cmd)] = verdict
		data.Scripts = append(data.Scripts, verdict)
	}

	if err := ctx.Err(); err != nil {
		return agent.Failed(Name, err)
	}
	return &agent.Result{AgentName: Name, Status: agent.StatusSuccess, Data: data}
}

// interesting selects the scripts worth inspecting: those the pattern
// layer flagged and those above the complexity gate.
func (a *Agent) interesting(in *agent.Context, hook, cmd string) bool {
	if scriptpattern.ComplexityScore(cmd) >= ComplexityGate {
		return true
	}
	for _, f := range in.InitialFindings {
		if f.Type != inventory.FindingMaliciousScript {
			continue
		}
		if h, ok := f.Extra["hook"].(string); ok && h == hook {
			return true
		}
	}
	return false
}

const inspectSystemPrompt = `You are a security analyst reviewing a package install script for malicious behavior.
Known attack categories: %s.
Respond with a JSON object: {"obfuscation_detected": [string],
"behavioral_indicators": [string], "code_quality_assessment": string,
"severity": "low"|"medium"|"high"|"critical", "confidence": number in [0,1]}.`

// inspect asks the model about one script, falling back to the
// pattern-only verdict on any model failure.
func (a *Agent) inspect(ctx context.Context, hook, cmd string) *ScriptVerdict {
	if a.cfg.LLM.Available() {
		var verdict ScriptVerdict
		system := fmt.Sprintf(inspectSystemPrompt, strings.Join(scriptpattern.Categories(), ", "))
		user := fmt.Sprintf("Lifecycle hook: %s\nScript:\n%s", hook, cmd)
		err := a.cfg.LLM.GenerateObject(ctx, system, user, &verdict)
		if err == nil {
			verdict.Hook = hook
			verdict.Command = cmd
			verdict.LLMUsed = true
			if verdict.Severity.Rank() < 0 {
				verdict.Severity = inventory.SeverityMedium
			}
			return &verdict
		}
		log.Warnf("codeagent: model inspection of %q failed, using pattern verdict: %v", hook, err)
	}
	return patternVerdict(hook, cmd)
}

// patternVerdict derives the verdict from pattern matches alone.
func patternVerdict(hook, cmd string) *ScriptVerdict {
	var matches []scriptpattern.Match
	if hook == scriptpattern.SetupPyHook {
		matches = scriptpattern.ScanSetupPy(cmd)
	} else {
		matches = scriptpattern.ScanScripts(map[string]string{hook: cmd})
	}

	verdict := &ScriptVerdict{
		Hook:                  hook,
		Command:               cmd,
		ObfuscationDetected:   []string{},
		BehavioralIndicators:  []string{},
		CodeQualityAssessment: "pattern-based analysis only",
		Severity:              inventory.SeverityLow,
		Confidence:            0.5,
	}
	for _, m := range matches {
		verdict.BehavioralIndicators = append(verdict.BehavioralIndicators, m.Category)
		if m.Severity.Rank() > verdict.Severity.Rank() {
			verdict.Severity = m.Severity
		}
		if m.Confidence > verdict.Confidence {
			verdict.Confidence = m.Confidence
		}
	}
	if scriptpattern.ComplexityScore(cmd) >= ComplexityGate {
		verdict.ObfuscationDetected = append(verdict.ObfuscationDetected, "high complexity score")
	}
	return verdict
}

// Findings converts verdicts at or above high severity into findings.
func (d *Data) Findings(m *inventory.Manifest) []*inventory.Finding {
	var findings []*inventory.Finding
	for _, v := range d.Scripts {
		if v.Severity.Rank() < inventory.SeverityHigh.Rank() {
			continue
		}
		name := "(project)"
		eco := inventory.Ecosystem("")
		if m != nil {
			name = m.Path
			eco = m.Ecosystem
		}
		findings = append(findings, &inventory.Finding{
			PackageName:     name,
			Ecosystem:       eco,
			Type:            inventory.FindingCodeAnomaly,
			Severity:        v.Severity,
			Confidence:      v.Confidence,
			Evidence:        append([]string{"hook: " + v.Hook}, v.BehavioralIndicators...),
			Remediation:     []string{"inspect the flagged script manually before installing"},
			Source:          Name,
			DetectionMethod: inventory.DetectionAgent,
		})
	}
	return findings
}
