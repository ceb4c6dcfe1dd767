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

// Package orchestrator sequences the analysis agents: fixed stage
// order, per-stage timeouts under one total deadline, gate checks for
// the conditional stages, one retry for retryable failures, and
// fallback data for required stages so a report always comes out.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/agent/codeagent"
	"github.com/vishu-2s/depscan/agent/reputationagent"
	"github.com/vishu-2s/depscan/agent/supplychainagent"
	"github.com/vishu-2s/depscan/agent/synthagent"
	"github.com/vishu-2s/depscan/agent/vulnagent"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
	"github.com/vishu-2s/depscan/report"
)

// Stage timing defaults.
const (
	DefaultTotalTimeout       = 140 * time.Second
	DefaultVulnTimeout        = 30 * time.Second
	DefaultReputationTimeout  = 20 * time.Second
	DefaultCodeTimeout        = 40 * time.Second
	DefaultSupplyChainTimeout = 30 * time.Second
	DefaultSynthesisTimeout   = 20 * time.Second
)

// Degradation levels, from best to worst.
const (
	DegradationFull    = "full"
	DegradationPartial = "partial"
	DegradationBasic   = "basic"
	DegradationMinimal = "minimal"
)

// Gate decides whether a conditional stage runs. A nil Gate always runs.
type Gate func(*agent.Context) (bool, string)

// Fallback produces replacement data for a required stage that failed
// terminally.
type Fallback func(*agent.Context) any

// Stage binds an agent to its execution policy.
type Stage struct {
	Agent    agent.Agent
	Required bool
	Timeout  time.Duration
	Gate     Gate
	Fallback Fallback
}

// Config configures a run.
type Config struct {
	Stages       []Stage
	TotalTimeout time.Duration
	Retry        agent.RetryPolicy
}

// DefaultStages returns the standard five-stage pipeline around the
// given agents.
func DefaultStages(vuln *vulnagent.Agent, rep *reputationagent.Agent, code *codeagent.Agent, supply *supplychainagent.Agent, synth *synthagent.Agent) []Stage {
	return []Stage{
		{Agent: vuln, Required: true, Timeout: DefaultVulnTimeout, Fallback: fallbackVulnerability},
		{Agent: rep, Required: true, Timeout: DefaultReputationTimeout, Fallback: fallbackReputation},
		{Agent: code, Timeout: DefaultCodeTimeout, Gate: codeagent.Gate},
		{Agent: supply, Timeout: DefaultSupplyChainTimeout, Gate: supplychainagent.Gate},
		{Agent: synth, Required: true, Timeout: DefaultSynthesisTimeout, Fallback: fallbackSynthesis},
	}
}

// DefaultConfig wraps DefaultStages with standard timing.
func DefaultConfig(stages []Stage) Config {
	return Config{
		Stages:       stages,
		TotalTimeout: DefaultTotalTimeout,
		Retry:        agent.DefaultRetryPolicy(),
	}
}

// Outcome is the result of one orchestrated run.
type Outcome struct {
	// Results in stage order, one per stage.
	Results []*agent.Result
	// Body is the synthesized report body, from the synthesis agent or
	// the deterministic fallback.
	Body *report.Body
	// Input is the synthesizer input, kept for report assembly.
	Input *report.Input

	Degradation       string
	Confidence        float64
	DegradationReason string
	MissingAnalysis   []string

	TotalDuration time.Duration
}

// Run executes every stage in order against the shared context. It
// never returns an error: whatever happens, the outcome carries a valid
// report body at some degradation level.
func Run(ctx context.Context, actx *agent.Context, cfg Config) *Outcome {
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = DefaultTotalTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = agent.DefaultRetryPolicy()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.TotalTimeout)
	defer cancel()

	if actx.Results == nil {
		actx.Results = map[string]*agent.Result{}
	}

	out := &Outcome{}
	start := time.Now()
	for _, stage := range cfg.Stages {
		res := runStage(ctx, actx, stage, cfg.Retry)
		actx.Results[stage.Agent.Name()] = res
		out.Results = append(out.Results, res)
		log.Infof("orchestrator: stage %s finished: %s (%.2fs)",
			stage.Agent.Name(), res.Status, res.Duration.Seconds())
	}
	out.TotalDuration = time.Since(start)

	out.Input = synthagent.BuildInput(actx)
	out.Body = report.Synthesize(out.Input)
	if synthRes := actx.Results[synthagent.Name]; synthRes != nil {
		if body, ok := synthRes.Data.(*report.Body); ok && body != nil {
			out.Body = body
		}
	}
	out.degrade(cfg.Stages)
	return out
}

// runStage applies the per-stage protocol: gate, invoke under the stage
// deadline, retry retryable failures once, fall back for required
// stages.
func runStage(ctx context.Context, actx *agent.Context, stage Stage, retry agent.RetryPolicy) *agent.Result {
	name := stage.Agent.Name()
	if stage.Gate != nil {
		if open, reason := stage.Gate(actx); !open {
			return agent.Skipped(name, reason)
		}
	}

	var res *agent.Result
	delay := retry.BaseDelay
	start := time.Now()
	for attempt := 0; ; attempt++ {
		res = invoke(ctx, actx, stage)
		res.Retries = attempt
		if res.Status == agent.StatusSuccess || !res.ErrorType.Retryable() ||
			attempt+1 >= retry.MaxAttempts || ctx.Err() != nil {
			break
		}
		log.Warnf("orchestrator: stage %s failed with retryable %s, retrying", name, res.ErrorType)
		select {
		case <-ctx.Done():
			// The total deadline leaves no room for another attempt.
		case <-time.After(delay):
			delay *= time.Duration(retry.Factor)
			continue
		}
		break
	}
	res.Duration = time.Since(start)

	if res.Status == agent.StatusSuccess {
		return res
	}
	if stage.Required && stage.Fallback != nil {
		log.Warnf("orchestrator: stage %s failed terminally (%s), using fallback data", name, res.ErrorType)
		res.Data = stage.Fallback(actx)
		res.Fallback = true
		return res
	}
	if !stage.Required {
		res.SkipReason = fmt.Sprintf("stage failed: %s", res.Error)
		res.Status = agent.StatusSkipped
	}
	return res
}

// invoke runs the agent under the stage deadline, converting a panic or
// deadline into the corresponding result.
func invoke(ctx context.Context, actx *agent.Context, stage Stage) (res *agent.Result) {
	sctx, cancel := context.WithTimeout(ctx, stage.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = &agent.Result{
				AgentName: stage.Agent.Name(),
				Status:    agent.StatusFailed,
				ErrorType: agent.ErrorUnknown,
				Error:     fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	res = stage.Agent.Analyze(sctx, actx)
	if res == nil {
		res = &agent.Result{
			AgentName: stage.Agent.Name(),
			Status:    agent.StatusFailed,
			ErrorType: agent.ErrorInvalidResponse,
			Error:     "agent returned no result",
		}
	}
	if sctx.Err() != nil && res.Status != agent.StatusSuccess {
		res.Status = agent.StatusTimeout
		res.ErrorType = agent.ErrorTimeout
		if res.Error == "" {
			res.Error = sctx.Err().Error()
		}
	}
	return res
}

// degrade computes the degradation level from the stage statuses.
func (o *Outcome) degrade(stages []Stage) {
	requiredOK, requiredFallback, optionalFailed := 0, 0, 0
	var reasons []string
	for i, stage := range stages {
		res := o.Results[i]
		switch {
		case res.Succeeded():
			if stage.Required {
				requiredOK++
			}
		case stage.Required:
			requiredFallback++
			reasons = append(reasons, fmt.Sprintf("%s: %s", res.AgentName, res.ErrorType))
			o.MissingAnalysis = append(o.MissingAnalysis, res.AgentName)
		case res.Status == agent.StatusSkipped && res.SkipReason != "" && res.Error != "":
			// Failure downgrade, not a closed gate.
			optionalFailed++
			reasons = append(reasons, fmt.Sprintf("%s: %s", res.AgentName, res.ErrorType))
			o.MissingAnalysis = append(o.MissingAnalysis, res.AgentName)
		}
	}

	switch {
	case requiredFallback == 0 && optionalFailed == 0:
		o.Degradation, o.Confidence = DegradationFull, 0.95
	case requiredFallback == 0:
		o.Degradation, o.Confidence = DegradationPartial, 0.75
	case requiredOK > 0:
		o.Degradation, o.Confidence = DegradationBasic, 0.55
	default:
		o.Degradation, o.Confidence = DegradationMinimal, 0.35
	}
	if len(reasons) > 0 {
		o.DegradationReason = fmt.Sprintf("degraded stages: %v", reasons)
	}
}

// fallbackVulnerability substitutes the rule layer's findings for the
// vulnerability agent's output.
func fallbackVulnerability(actx *agent.Context) any {
	return slices.Clone(actx.InitialFindings)
}

// fallbackReputation substitutes neutral scores for every package.
func fallbackReputation(actx *agent.Context) any {
	data := &reputationagent.Data{}
	for _, ref := range actx.Packages {
		data.Packages = append(data.Packages, &reputationagent.PackageReputation{
			Ref: ref,
			Record: &inventory.ReputationRecord{
				Score:     0.5,
				RiskLevel: inventory.RiskLow,
				Factors: inventory.ReputationFactors{
					Age: 0.5, Downloads: 0.5, Author: 0.5, Maintenance: 0.5,
				},
				Reasoning:  "neutral fallback score, reputation analysis unavailable",
				Confidence: 0,
			},
		})
	}
	return data
}

// fallbackSynthesis runs the deterministic synthesizer.
func fallbackSynthesis(actx *agent.Context) any {
	return report.Synthesize(synthagent.BuildInput(actx))
}
