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

// Package depscan runs a complete dependency security analysis: manifest
// discovery, dependency resolution, the rule-based detection layer and
// the agent pipeline, composed into the fixed report schema.
package depscan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/agent/codeagent"
	"github.com/vishu-2s/depscan/agent/reputationagent"
	"github.com/vishu-2s/depscan/agent/supplychainagent"
	"github.com/vishu-2s/depscan/agent/synthagent"
	"github.com/vishu-2s/depscan/agent/vulnagent"
	"github.com/vishu-2s/depscan/cache"
	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/clients/llm"
	"github.com/vishu-2s/depscan/clients/osvdev"
	"github.com/vishu-2s/depscan/detector/ruledetect"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
	"github.com/vishu-2s/depscan/manifest"
	"github.com/vishu-2s/depscan/orchestrator"
	"github.com/vishu-2s/depscan/report"
	"github.com/vishu-2s/depscan/resolver"
)

// Config holds one analysis run's settings.
type Config struct {
	// Target is the identifier the user supplied, recorded in metadata.
	Target string
	// Dir is the local directory holding the manifests to analyze.
	Dir string
	// InputMode is "local" or "github".
	InputMode string

	// Cache backs registry, OSV and LLM lookups. Nil disables caching.
	Cache cache.Store
	// EnableOSV toggles OSV.dev queries; disabled runs behave as offline.
	EnableOSV bool
	// OpenAIKey enables model-assisted stages when non-empty.
	OpenAIKey string

	MaxDepth int
	Manifest manifest.Config
}

// DefaultConfig returns a Config with network features enabled and no
// cache.
func DefaultConfig() Config {
	return Config{
		InputMode: "local",
		EnableOSV: true,
		MaxDepth:  resolver.DefaultMaxDepth,
		Manifest:  manifest.DefaultConfig(),
	}
}

// ErrNoManifest is returned when the target contains no supported
// manifest files.
var ErrNoManifest = manifest.ErrNoManifest

// Analyze runs the full pipeline and returns the composed report. It
// returns an error only when proactive validation fails (no readable
// manifest); every later failure degrades the report instead.
func Analyze(ctx context.Context, cfg Config) (*report.Report, error) {
	start := time.Now()

	manifests, err := manifest.Discover(cfg.Dir, cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("discovering manifests: %w", err)
	}
	merged := manifest.Merge(manifests)
	log.Infof("depscan: %d manifest(s), %d direct dependencies (%s)",
		len(manifests), len(merged.Packages), merged.Ecosystem)

	store := cfg.Cache
	if store == nil {
		store = cache.Noop{}
	}
	dsCfg := datasource.DefaultConfig()
	dsCfg.Cache = store
	npm := datasource.NewNPMRegistryClient(dsCfg)
	pypi := datasource.NewPyPIRegistryClient(dsCfg)

	graph := resolver.Resolve(ctx, merged, resolver.Config{
		MaxDepth: cfg.MaxDepth,
		NPM:      npm,
		PyPI:     pypi,
	})
	packages := graph.Packages()

	det := ruledetect.New(ruledetect.Config{
		NPM:  npm,
		PyPI: pypi,
	})
	ruleRes := det.Detect(ctx, merged, packages)
	log.Infof("depscan: rule layer produced %d finding(s)", len(ruleRes.Findings))

	llmClient := llm.New(llm.Config{APIKey: cfg.OpenAIKey, Cache: store})
	osvCfg := osvdev.DefaultConfig()
	if !cfg.EnableOSV {
		// Forcing the reachability probe to fail puts the client on its
		// offline path without touching the network.
		osvCfg.LookupHost = func(context.Context, string) ([]string, error) {
			return nil, errors.New("osv queries disabled")
		}
		log.Infof("depscan: OSV queries disabled by configuration")
	}

	actx := &agent.Context{
		Manifest:          merged,
		Packages:          packages,
		Graph:             graph,
		InitialFindings:   ruleRes.Findings,
		Reputations:       ruleRes.Reputations,
		ReputationSkipped: ruleRes.ReputationSkipped,
	}
	stages := orchestrator.DefaultStages(
		vulnagent.New(vulnagent.Config{OSV: osvdev.New(osvCfg), LLM: llmClient}),
		reputationagent.New(reputationagent.Config{NPM: npm, PyPI: pypi}),
		codeagent.New(codeagent.Config{LLM: llmClient}),
		supplychainagent.New(),
		synthagent.New(synthagent.Config{LLM: llmClient}),
	)
	outcome := orchestrator.Run(ctx, actx, orchestrator.DefaultConfig(stages))

	return compose(cfg, merged, graph, ruleRes, actx, outcome, llmClient.Available(), store, time.Since(start)), nil
}

// compose assembles the final report document.
func compose(cfg Config, m *inventory.Manifest, graph *resolver.Graph, ruleRes *ruledetect.Result, actx *agent.Context, outcome *orchestrator.Outcome, llmEnabled bool, store cache.Store, total time.Duration) *report.Report {
	r := &report.Report{
		Metadata: report.Metadata{
			AnalysisID:           uuid.NewString(),
			Target:               cfg.Target,
			Timestamp:            time.Now().UTC().Format(time.RFC3339),
			Ecosystem:            string(m.Ecosystem),
			InputMode:            cfg.InputMode,
			AnalysisStatus:       outcome.Degradation,
			Confidence:           outcome.Confidence,
			AgentAnalysisEnabled: llmEnabled,
			DegradationReason:    outcome.DegradationReason,
			MissingAnalysis:      outcome.MissingAnalysis,
		},
		Summary:          outcome.Body.Summary,
		SecurityFindings: outcome.Body.SecurityFindings,
		Recommendations:  outcome.Body.Recommendations,
		RiskAssessment:   outcome.Body.RiskAssessment,
	}

	r.RuleBased = ruleBasedSection(ruleRes, len(actx.Packages), cfg.EnableOSV)
	r.DependencyGraph = graphSection(graph)
	r.AgentInsights, r.Metadata.ErrorSummary = insights(outcome)
	r.SupplyChain, r.CodeAnalysis = optionalSections(actx)

	r.Performance = report.PerformanceMetrics{
		TotalDurationSeconds: total.Seconds(),
		AgentDurations:       map[string]float64{},
		CacheHits:            store.Stats().Hits,
		PackagesAnalyzed:     len(actx.Packages),
		TotalFindings:        r.Summary.TotalFindings,
	}
	for _, res := range outcome.Results {
		r.Performance.AgentDurations[res.AgentName] = res.Duration.Seconds()
	}
	return r
}

func ruleBasedSection(ruleRes *ruledetect.Result, totalPackages int, osvEnabled bool) report.RuleBased {
	withIssues := map[string]bool{}
	for _, f := range ruleRes.Findings {
		withIssues[f.PackageName] = true
	}
	osvStatus := "delegated to vulnerability agent"
	if !osvEnabled {
		osvStatus = "disabled by configuration"
	}
	repStatus := "completed"
	if ruleRes.ReputationSkipped {
		repStatus = "skipped: package count exceeds scale threshold"
	}
	return report.RuleBased{
		Description:        "deterministic detection: block-list, typosquat distance, install-script patterns, reputation (" + repStatus + ")",
		Confidence:         0.9,
		TotalPackages:      totalPackages,
		PackagesWithIssues: len(withIssues),
		TotalIssues:        len(ruleRes.Findings),
		DetectionMethods: report.DetectionMethods{
			OSVAPI:            osvStatus,
			MaliciousPackages: "completed",
			Typosquatting:     "completed",
			PatternAnalysis:   "completed",
		},
	}
}

func graphSection(graph *resolver.Graph) report.DependencyGraph {
	return report.DependencyGraph{
		Applicable:    true,
		TotalPackages: len(graph.Order) - 1,
		CircularDependencies: report.CycleSummary{
			Count:   len(graph.Cycles),
			Details: graph.Cycles,
		},
		VersionConflicts: report.ConflictSummary{
			Count:   len(graph.Conflicts),
			Details: graph.Conflicts,
		},
	}
}

func insights(outcome *orchestrator.Outcome) (report.AgentInsights, []report.AgentError) {
	ins := report.AgentInsights{
		DegradationLevel: outcome.Degradation,
		AgentDetails:     map[string]report.AgentDetail{},
	}
	var errs []report.AgentError
	for _, res := range outcome.Results {
		detail := report.AgentDetail{
			Success:         res.Succeeded(),
			DurationSeconds: res.Duration.Seconds(),
			Error:           res.Error,
		}
		switch data := res.Data.(type) {
		case *vulnagent.Data:
			detail.Confidence = 0.9
			detail.PackagesAnalyzed = len(data.Packages)
			detail.FindingsCount = len(data.Findings())
		case *reputationagent.Data:
			detail.Confidence = 0.8
			detail.PackagesAnalyzed = len(data.Packages)
			detail.FindingsCount = len(data.Findings())
		case *codeagent.Data:
			detail.Confidence = 0.85
			detail.PackagesAnalyzed = len(data.Scripts)
		case *supplychainagent.Data:
			detail.Confidence = 0.85
			detail.PackagesAnalyzed = len(data.Packages)
			detail.FindingsCount = len(data.Findings())
		case *report.Body:
			detail.Confidence = outcome.Confidence
			detail.FindingsCount = data.Summary.TotalFindings
		}
		ins.AgentDetails[res.AgentName] = detail

		if res.Succeeded() {
			ins.SuccessfulAgents = append(ins.SuccessfulAgents, res.AgentName)
		} else if res.Error != "" {
			errs = append(errs, report.AgentError{
				Agent: res.AgentName,
				Error: res.Error,
				Type:  string(res.ErrorType),
			})
		}
	}
	ins.FailedAgents = errs
	return ins, errs
}

func optionalSections(actx *agent.Context) (*report.SupplyChainAnalysis, *report.CodeAnalysis) {
	var supply *report.SupplyChainAnalysis
	var code *report.CodeAnalysis

	if data, ok := actx.ResultData(supplychainagent.Name).(*supplychainagent.Data); ok {
		supply = &report.SupplyChainAnalysis{
			Applicable:            true,
			Description:           "comparison of risk-flagged packages against known supply-chain attack shapes",
			TotalPackagesAnalyzed: len(data.Packages),
			AttacksDetected:       data.AttacksDetected(),
			Confidence:            0.85,
			Source:                "supply_chain_agent",
		}
		for _, p := range data.Packages {
			supply.Packages = append(supply.Packages, p)
		}
	}
	if data, ok := actx.ResultData(codeagent.Name).(*codeagent.Data); ok {
		issues := 0
		for _, v := range data.Scripts {
			if v.Severity.Rank() >= inventory.SeverityMedium.Rank() {
				issues++
			}
		}
		code = &report.CodeAnalysis{
			Applicable:            true,
			Description:           "deep inspection of flagged install scripts",
			TotalPackagesAnalyzed: len(data.Scripts),
			CodeIssuesFound:       issues,
			Confidence:            0.85,
			Source:                "code_agent",
		}
		for _, v := range data.Scripts {
			code.Packages = append(code.Packages, v)
		}
	}
	return supply, code
}
