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

// Package reputationagent is the reputation analysis stage: registry
// metadata lookups fanned out per package, scored into reputation
// records.
package reputationagent

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
	"github.com/vishu-2s/depscan/reputation"
	"github.com/vishu-2s/depscan/resolver"
)

// Name of this agent.
const Name = "reputation"

// defaultConcurrency bounds the registry fan-out.
const defaultConcurrency = 10

// Config configures the agent. A nil source disables that ecosystem;
// its packages are skipped gracefully rather than failed.
type Config struct {
	NPM         resolver.MetadataSource
	PyPI        resolver.MetadataSource
	Scorer      *reputation.Scorer
	Concurrency int
}

// DefaultConfig returns defaults with live registry clients.
func DefaultConfig() Config {
	return Config{
		NPM:         datasource.NewNPMRegistryClient(datasource.DefaultConfig()),
		PyPI:        datasource.NewPyPIRegistryClient(datasource.DefaultConfig()),
		Scorer:      &reputation.Scorer{},
		Concurrency: defaultConcurrency,
	}
}

// PackageReputation is the per-package output.
type PackageReputation struct {
	Ref        inventory.PackageRef        `json:"package"`
	Record     *inventory.ReputationRecord `json:"reputation,omitempty"`
	Error      string                      `json:"error,omitempty"`
	SkipReason string                      `json:"skip_reason,omitempty"`
}

// Data is the agent's result payload, in input package order.
type Data struct {
	Packages []*PackageReputation `json:"packages"`
}

// Records returns the scored records keyed by "ecosystem/name".
func (d *Data) Records() map[string]*inventory.ReputationRecord {
	out := map[string]*inventory.ReputationRecord{}
	for _, p := range d.Packages {
		if p.Record != nil {
			out[string(p.Ref.Ecosystem)+"/"+p.Ref.Name] = p.Record
		}
	}
	return out
}

// Agent scores every resolved package's reputation.
type Agent struct {
	cfg Config
}

// New creates the agent.
func New(cfg Config) *Agent {
	if cfg.Scorer == nil {
		cfg.Scorer = &reputation.Scorer{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Agent{cfg: cfg}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return Name }

// Analyze implements agent.Agent. Rule-layer records in the context are
// reused; only the remainder hits the registries. Per-package lookup
// failures are recorded on their entries, the stage itself succeeds as
// long as the context is live.
func (a *Agent) Analyze(ctx context.Context, in *agent.Context) *agent.Result {
	data := &Data{Packages: make([]*PackageReputation, len(in.Packages))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, ref := range in.Packages {
		g.Go(func() error {
			data.Packages[i] = a.score(gctx, in, ref)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return agent.Failed(Name, err)
	}
	return &agent.Result{AgentName: Name, Status: agent.StatusSuccess, Data: data}
}

func (a *Agent) score(ctx context.Context, in *agent.Context, ref inventory.PackageRef) *PackageReputation {
	p := &PackageReputation{Ref: ref}
	if rec, ok := in.Reputations[string(ref.Ecosystem)+"/"+ref.Name]; ok {
		p.Record = rec
		return p
	}

	source := a.source(ref.Ecosystem)
	if source == nil {
		p.SkipReason = "unsupported ecosystem"
		return p
	}
	meta, err := source.Metadata(ctx, ref.Name, ref.ResolvedVersion)
	switch {
	case errors.Is(err, datasource.ErrNotFound):
		p.SkipReason = "not found in registry"
		return p
	case err != nil:
		log.Warnf("reputationagent: metadata for %s unavailable: %v", ref, err)
		p.Error = err.Error()
		return p
	}
	p.Record = a.cfg.Scorer.Score(meta)
	return p
}

func (a *Agent) source(eco inventory.Ecosystem) resolver.MetadataSource {
	switch eco {
	case inventory.EcosystemNPM:
		return a.cfg.NPM
	case inventory.EcosystemPyPI:
		return a.cfg.PyPI
	}
	return nil
}

// Findings emits low_reputation findings for high-risk records.
func (d *Data) Findings() []*inventory.Finding {
	var findings []*inventory.Finding
	for _, p := range d.Packages {
		if p.Record == nil || p.Record.RiskLevel != inventory.RiskHigh {
			continue
		}
		findings = append(findings, &inventory.Finding{
			PackageName:     p.Ref.Name,
			PackageVersion:  p.Ref.Version(),
			Ecosystem:       p.Ref.Ecosystem,
			Type:            inventory.FindingLowReputation,
			Severity:        inventory.SeverityMedium,
			Confidence:      p.Record.Confidence,
			Evidence:        []string{p.Record.Reasoning},
			Remediation:     []string{"review the package's provenance and consider an established alternative"},
			Source:          Name,
			DetectionMethod: inventory.DetectionAgent,
		})
	}
	return findings
}
