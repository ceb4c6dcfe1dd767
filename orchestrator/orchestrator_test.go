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

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/agent/synthagent"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/report"
)

// stubAgent runs a canned Analyze function.
type stubAgent struct {
	name string
	fn   func(ctx context.Context, in *agent.Context) *agent.Result
}

func (s *stubAgent) Name() string { return s.name }
func (s *stubAgent) Analyze(ctx context.Context, in *agent.Context) *agent.Result {
	return s.fn(ctx, in)
}

func succeeding(name string) *stubAgent {
	return &stubAgent{name: name, fn: func(context.Context, *agent.Context) *agent.Result {
		return &agent.Result{AgentName: name, Status: agent.StatusSuccess}
	}}
}

func failing(name string, err error) *stubAgent {
	return &stubAgent{name: name, fn: func(context.Context, *agent.Context) *agent.Result {
		return agent.Failed(name, err)
	}}
}

func fastRetry() agent.RetryPolicy {
	return agent.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Factor: 2}
}

func runConfig(stages ...Stage) Config {
	return Config{Stages: stages, TotalTimeout: 5 * time.Second, Retry: fastRetry()}
}

func TestRunAllSuccess(t *testing.T) {
	cfg := runConfig(
		Stage{Agent: succeeding("vulnerability"), Required: true, Timeout: time.Second},
		Stage{Agent: succeeding("reputation"), Required: true, Timeout: time.Second},
		Stage{Agent: succeeding(synthagent.Name), Required: true, Timeout: time.Second},
	)
	out := Run(context.Background(), &agent.Context{}, cfg)

	if out.Degradation != DegradationFull || out.Confidence != 0.95 {
		t.Errorf("degradation = %s/%v, want full/0.95", out.Degradation, out.Confidence)
	}
	if len(out.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(out.Results))
	}
	for i, name := range []string{"vulnerability", "reputation", synthagent.Name} {
		if out.Results[i].AgentName != name {
			t.Errorf("result %d = %s, want %s (stage order)", i, out.Results[i].AgentName, name)
		}
	}
	if out.Body == nil {
		t.Error("no report body despite successful run")
	}
	if out.DegradationReason != "" || len(out.MissingAnalysis) != 0 {
		t.Errorf("clean run reports degradation: %q %v", out.DegradationReason, out.MissingAnalysis)
	}
}

func TestRunRequiredFailureUsesFallback(t *testing.T) {
	fallbackRan := false
	cfg := runConfig(
		Stage{Agent: succeeding("vulnerability"), Required: true, Timeout: time.Second},
		Stage{
			Agent:    failing("reputation", errors.New("schema drift")),
			Required: true,
			Timeout:  time.Second,
			Fallback: func(*agent.Context) any {
				fallbackRan = true
				return "neutral"
			},
		},
	)
	out := Run(context.Background(), &agent.Context{}, cfg)

	if !fallbackRan {
		t.Error("required stage fallback did not run")
	}
	res := out.Results[1]
	if !res.Fallback || res.Data != "neutral" {
		t.Errorf("fallback not recorded on result: %+v", res)
	}
	if res.Status != agent.StatusFailed {
		t.Errorf("status = %s, fallback data must not mask the failure", res.Status)
	}
	if out.Degradation != DegradationBasic || out.Confidence != 0.55 {
		t.Errorf("degradation = %s/%v, want basic/0.55", out.Degradation, out.Confidence)
	}
	if len(out.MissingAnalysis) != 1 || out.MissingAnalysis[0] != "reputation" {
		t.Errorf("missing analysis = %v, want [reputation]", out.MissingAnalysis)
	}
}

func TestRunAllRequiredFailedMinimal(t *testing.T) {
	cfg := runConfig(
		Stage{Agent: failing("vulnerability", errors.New("boom")), Required: true, Timeout: time.Second},
		Stage{Agent: failing("reputation", errors.New("boom")), Required: true, Timeout: time.Second},
	)
	out := Run(context.Background(), &agent.Context{}, cfg)
	if out.Degradation != DegradationMinimal || out.Confidence != 0.35 {
		t.Errorf("degradation = %s/%v, want minimal/0.35", out.Degradation, out.Confidence)
	}
	if out.Body == nil {
		t.Error("minimal run must still produce a body")
	}
}

func TestRunOptionalFailureDowngraded(t *testing.T) {
	cfg := runConfig(
		Stage{Agent: succeeding("vulnerability"), Required: true, Timeout: time.Second},
		Stage{Agent: failing("code", errors.New("model unavailable")), Timeout: time.Second},
	)
	out := Run(context.Background(), &agent.Context{}, cfg)

	res := out.Results[1]
	if res.Status != agent.StatusSkipped {
		t.Errorf("optional failure status = %s, want SKIPPED", res.Status)
	}
	if res.Error == "" || !strings.Contains(res.SkipReason, "stage failed") {
		t.Errorf("failure downgrade must keep the error visible: %+v", res)
	}
	if out.Degradation != DegradationPartial || out.Confidence != 0.75 {
		t.Errorf("degradation = %s/%v, want partial/0.75", out.Degradation, out.Confidence)
	}
}

func TestRunGateSkipIsNotDegradation(t *testing.T) {
	gateChecked := false
	cfg := runConfig(
		Stage{Agent: succeeding("vulnerability"), Required: true, Timeout: time.Second},
		Stage{
			Agent:   succeeding("supply_chain"),
			Timeout: time.Second,
			Gate: func(*agent.Context) (bool, string) {
				gateChecked = true
				return false, "no gating risk factors"
			},
		},
	)
	out := Run(context.Background(), &agent.Context{}, cfg)

	if !gateChecked {
		t.Error("gate never evaluated")
	}
	res := out.Results[1]
	if res.Status != agent.StatusSkipped || res.SkipReason != "no gating risk factors" {
		t.Errorf("gate skip = %+v", res)
	}
	if res.Error != "" {
		t.Errorf("gate skip must carry no error: %+v", res)
	}
	if out.Degradation != DegradationFull {
		t.Errorf("degradation = %s, closed gates must not degrade", out.Degradation)
	}
}

func TestRunRetriesRetryableOnce(t *testing.T) {
	calls := 0
	flaky := &stubAgent{name: "vulnerability", fn: func(context.Context, *agent.Context) *agent.Result {
		calls++
		if calls == 1 {
			return &agent.Result{
				AgentName: "vulnerability",
				Status:    agent.StatusFailed,
				ErrorType: agent.ErrorConnection,
				Error:     "connection reset",
			}
		}
		return &agent.Result{AgentName: "vulnerability", Status: agent.StatusSuccess}
	}}
	cfg := runConfig(Stage{Agent: flaky, Required: true, Timeout: time.Second})
	out := Run(context.Background(), &agent.Context{}, cfg)

	if calls != 2 {
		t.Errorf("agent ran %d times, want 2", calls)
	}
	if out.Results[0].Status != agent.StatusSuccess || out.Results[0].Retries != 1 {
		t.Errorf("result = %+v, want success after one retry", out.Results[0])
	}
}

func TestRunDoesNotRetryTerminal(t *testing.T) {
	calls := 0
	broken := &stubAgent{name: "synthesis", fn: func(context.Context, *agent.Context) *agent.Result {
		calls++
		return &agent.Result{
			AgentName: "synthesis",
			Status:    agent.StatusFailed,
			ErrorType: agent.ErrorInvalidResponse,
			Error:     "malformed body",
		}
	}}
	cfg := runConfig(Stage{Agent: broken, Required: true, Timeout: time.Second})
	Run(context.Background(), &agent.Context{}, cfg)
	if calls != 1 {
		t.Errorf("terminal failure retried: agent ran %d times", calls)
	}
}

func TestRunStageTimeout(t *testing.T) {
	slow := &stubAgent{name: "code", fn: func(ctx context.Context, _ *agent.Context) *agent.Result {
		<-ctx.Done()
		return agent.Failed("code", ctx.Err())
	}}
	cfg := Config{
		Stages:       []Stage{{Agent: slow, Required: true, Timeout: 20 * time.Millisecond}},
		TotalTimeout: 5 * time.Second,
		Retry:        agent.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Factor: 2},
	}
	out := Run(context.Background(), &agent.Context{}, cfg)
	res := out.Results[0]
	if res.ErrorType != agent.ErrorTimeout {
		t.Errorf("error type = %s, want timeout", res.ErrorType)
	}
}

func TestRunAgentPanicContained(t *testing.T) {
	panicky := &stubAgent{name: "vulnerability", fn: func(context.Context, *agent.Context) *agent.Result {
		panic("nil map write")
	}}
	cfg := runConfig(Stage{Agent: panicky, Required: true, Timeout: time.Second})
	out := Run(context.Background(), &agent.Context{}, cfg)
	res := out.Results[0]
	if res.Status != agent.StatusFailed || res.ErrorType != agent.ErrorUnknown {
		t.Errorf("panic result = %+v, want FAILED/unknown", res)
	}
	if !strings.Contains(res.Error, "nil map write") {
		t.Errorf("panic message lost: %q", res.Error)
	}
}

func TestRunSynthesisBodyOverridesDeterministic(t *testing.T) {
	body := &report.Body{
		Recommendations: report.Recommendations{
			ImmediateActions: []string{"model-written action"},
		},
		RiskAssessment: &report.RiskAssessment{OverallRiskLevel: "low", Assessment: "model says fine"},
	}
	synth := &stubAgent{name: synthagent.Name, fn: func(context.Context, *agent.Context) *agent.Result {
		return &agent.Result{AgentName: synthagent.Name, Status: agent.StatusSuccess, Data: body}
	}}
	cfg := runConfig(Stage{Agent: synth, Required: true, Timeout: time.Second})
	out := Run(context.Background(), &agent.Context{}, cfg)
	if out.Body != body {
		t.Error("synthesis agent body not used")
	}
}

func TestRunSynthesisFailureFallsBackToDeterministic(t *testing.T) {
	actx := &agent.Context{
		InitialFindings: []*inventory.Finding{{
			PackageName: "evil-pkg",
			Ecosystem:   inventory.EcosystemNPM,
			Type:        inventory.FindingMaliciousPackage,
			Severity:    inventory.SeverityCritical,
			Confidence:  0.95,
		}},
	}
	synth := failing(synthagent.Name, errors.New("invalid json from model"))
	cfg := runConfig(Stage{
		Agent: synth, Required: true, Timeout: time.Second,
		Fallback: fallbackSynthesis,
	})
	out := Run(context.Background(), actx, cfg)

	if out.Body == nil {
		t.Fatal("no fallback body")
	}
	if err := report.ValidateBody(out.Body); err != nil {
		t.Errorf("fallback body invalid: %v", err)
	}
	if out.Body.Summary.CriticalFindings != 1 {
		t.Errorf("fallback body lost the critical finding: %+v", out.Body.Summary)
	}
}

func TestFallbackReputationNeutral(t *testing.T) {
	actx := &agent.Context{Packages: []inventory.PackageRef{
		{Ecosystem: inventory.EcosystemNPM, Name: "a", ResolvedVersion: "1.0.0"},
		{Ecosystem: inventory.EcosystemNPM, Name: "b", ResolvedVersion: "2.0.0"},
	}}
	data := fallbackReputation(actx)
	recs, ok := data.(interface {
		Records() map[string]*inventory.ReputationRecord
	})
	if !ok {
		t.Fatalf("fallback data %T does not expose records", data)
	}
	m := recs.Records()
	if len(m) != 2 {
		t.Fatalf("got %d fallback records, want 2", len(m))
	}
	for key, rec := range m {
		if rec.Score != 0.5 || rec.Confidence != 0 {
			t.Errorf("%s: fallback record = %+v, want neutral score with zero confidence", key, rec)
		}
	}
}
