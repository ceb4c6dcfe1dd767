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

// Package ruledetect is the deterministic detection layer. It runs
// before any agent: block-list matching, typosquat distance checks,
// install-script pattern scanning and, below a scale threshold, a
// reputation pass. Its findings seed the agent pipeline and stand alone
// when every agent fails.
package ruledetect

import (
	"context"
	"fmt"

	"github.com/agnivade/levenshtein"

	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
	"github.com/vishu-2s/depscan/reputation"
	"github.com/vishu-2s/depscan/resolver"
	"github.com/vishu-2s/depscan/scriptpattern"
)

// Subcomponent names recorded in each finding's Source field.
const (
	SourceMaliciousList = "malicious_packages"
	SourceTyposquat     = "typosquatting"
	SourceScriptScan    = "pattern_analysis"
	SourceReputation    = "reputation_check"
)

// DefaultScaleSkipThreshold is the package count above which the
// rule-layer reputation pass is skipped.
const DefaultScaleSkipThreshold = 100

// maxTyposquatDistance bounds the edit distance considered a typosquat.
const maxTyposquatDistance = 2

// minTyposquatLength avoids flagging very short names, where distance 2
// covers half the alphabet of plausible packages.
const minTyposquatLength = 4

// Config configures the detector.
type Config struct {
	ScaleSkipThreshold int
	// NPM and PyPI registry sources back the reputation pass. Either may
	// be nil, disabling that ecosystem's pass.
	NPM    resolver.MetadataSource
	PyPI   resolver.MetadataSource
	Scorer *reputation.Scorer
}

// DefaultConfig returns the detector defaults, with no registry sources.
func DefaultConfig() Config {
	return Config{
		ScaleSkipThreshold: DefaultScaleSkipThreshold,
		Scorer:             &reputation.Scorer{},
	}
}

// Result is the output of one rule-based detection pass.
type Result struct {
	Findings []*inventory.Finding
	// Reputations holds the rule-layer reputation records, keyed by
	// "ecosystem/name". Empty when the pass was skipped.
	Reputations map[string]*inventory.ReputationRecord
	// ReputationSkipped reports that the package count exceeded the scale
	// threshold; the report summary must note this.
	ReputationSkipped bool
}

// Detector runs the rule-based checks.
type Detector struct {
	cfg       Config
	malicious map[string]bool
	popular   map[inventory.Ecosystem][]string
}

// New returns a detector with the bundled corpora loaded.
func New(cfg Config) *Detector {
	if cfg.ScaleSkipThreshold <= 0 {
		cfg.ScaleSkipThreshold = DefaultScaleSkipThreshold
	}
	if cfg.Scorer == nil {
		cfg.Scorer = &reputation.Scorer{}
	}
	d := &Detector{
		cfg:       cfg,
		malicious: map[string]bool{},
		popular:   bundledPopular,
	}
	for eco, names := range bundledMalicious {
		for _, name := range names {
			d.malicious[maliciousKey(eco, name)] = true
		}
	}
	return d
}

// Detect runs every rule-based check over the manifest and the resolved
// package set. All findings carry detection_method "rule_based"; they
// are deduplicated with evidence merged and sorted by severity.
func (d *Detector) Detect(ctx context.Context, m *inventory.Manifest, packages []inventory.PackageRef) *Result {
	res := &Result{Reputations: map[string]*inventory.ReputationRecord{}}
	var findings []*inventory.Finding

	findings = append(findings, d.scanScripts(m)...)
	for _, ref := range packages {
		if f := d.checkMalicious(ref); f != nil {
			findings = append(findings, f)
		}
		if f := d.checkTyposquat(ref); f != nil {
			findings = append(findings, f)
		}
	}

	if len(packages) > d.cfg.ScaleSkipThreshold {
		log.Infof("ruledetect: %d packages exceeds threshold %d, skipping rule-layer reputation checks",
			len(packages), d.cfg.ScaleSkipThreshold)
		res.ReputationSkipped = true
	} else {
		findings = append(findings, d.checkReputation(ctx, packages, res.Reputations)...)
	}

	res.Findings = inventory.MergeFindings(findings)
	inventory.SortFindings(res.Findings)
	return res
}

// scanScripts runs the pattern engine over npm lifecycle scripts and any
// setup.py source carried on the manifest.
func (d *Detector) scanScripts(m *inventory.Manifest) []*inventory.Finding {
	matches := scriptpattern.ScanScripts(m.Scripts)
	if m.SetupPySource != "" {
		matches = append(matches, scriptpattern.ScanSetupPy(m.SetupPySource)...)
	}

	findings := make([]*inventory.Finding, 0, len(matches))
	for _, match := range matches {
		findings = append(findings, &inventory.Finding{
			PackageName:     projectPackageName(m),
			Ecosystem:       m.Ecosystem,
			Type:            inventory.FindingMaliciousScript,
			Severity:        match.Severity,
			Confidence:      match.Confidence,
			Evidence:        append([]string{"category: " + match.Category}, match.Evidence...),
			Remediation:     []string{fmt.Sprintf("review the %q script before installing; remove it if unexplained", match.Hook)},
			Source:          SourceScriptScan,
			DetectionMethod: inventory.DetectionRuleBased,
			Extra: map[string]any{
				"hook":     match.Hook,
				"command":  match.Command,
				"category": match.Category,
			},
		})
	}
	return findings
}

// projectPackageName labels script findings, which belong to the
// analyzed project rather than to a dependency.
func projectPackageName(m *inventory.Manifest) string {
	if m.Path != "" {
		return m.Path
	}
	return "(project)"
}

func (d *Detector) checkMalicious(ref inventory.PackageRef) *inventory.Finding {
	if !d.malicious[maliciousKey(ref.Ecosystem, ref.Name)] {
		return nil
	}
	return &inventory.Finding{
		PackageName:     ref.Name,
		PackageVersion:  ref.Version(),
		Ecosystem:       ref.Ecosystem,
		Type:            inventory.FindingMaliciousPackage,
		Severity:        inventory.SeverityCritical,
		Confidence:      0.95,
		Evidence:        []string{fmt.Sprintf("%s is on the known-malicious package list", ref.Name)},
		Remediation:     []string{fmt.Sprintf("remove %s immediately and audit systems it was installed on", ref.Name)},
		Source:          SourceMaliciousList,
		DetectionMethod: inventory.DetectionRuleBased,
	}
}

// checkTyposquat flags names within edit distance 2 of a popular package
// in the same ecosystem. Exact popular names are trusted, not flagged.
func (d *Detector) checkTyposquat(ref inventory.PackageRef) *inventory.Finding {
	if len(ref.Name) < minTyposquatLength {
		return nil
	}
	best, target := maxTyposquatDistance+1, ""
	for _, popular := range d.popular[ref.Ecosystem] {
		if ref.Name == popular {
			return nil
		}
		if dist := levenshtein.ComputeDistance(ref.Name, popular); dist < best {
			best, target = dist, popular
		}
	}
	if best > maxTyposquatDistance {
		return nil
	}

	confidence := 0.9
	if best == 2 {
		confidence = 0.75
	}
	return &inventory.Finding{
		PackageName:     ref.Name,
		PackageVersion:  ref.Version(),
		Ecosystem:       ref.Ecosystem,
		Type:            inventory.FindingTyposquat,
		Severity:        inventory.SeverityHigh,
		Confidence:      confidence,
		Evidence:        []string{fmt.Sprintf("%q is edit distance %d from popular package %q", ref.Name, best, target)},
		Remediation:     []string{fmt.Sprintf("verify you meant %q; if so, replace %q with it", target, ref.Name)},
		Source:          SourceTyposquat,
		DetectionMethod: inventory.DetectionRuleBased,
		Extra: map[string]any{
			"similar_to":    target,
			"edit_distance": best,
		},
	}
}

// checkReputation scores each package and emits a finding for high-risk
// scores. Registry failures skip the package, never the pass.
func (d *Detector) checkReputation(ctx context.Context, packages []inventory.PackageRef, out map[string]*inventory.ReputationRecord) []*inventory.Finding {
	var findings []*inventory.Finding
	for _, ref := range packages {
		source := d.source(ref.Ecosystem)
		if source == nil {
			continue
		}
		meta, err := source.Metadata(ctx, ref.Name, ref.ResolvedVersion)
		if err != nil {
			log.Warnf("ruledetect: reputation metadata for %s unavailable: %v", ref, err)
			continue
		}
		rec := d.cfg.Scorer.Score(meta)
		out[maliciousKey(ref.Ecosystem, ref.Name)] = rec

		if rec.RiskLevel != inventory.RiskHigh {
			continue
		}
		findings = append(findings, &inventory.Finding{
			PackageName:     ref.Name,
			PackageVersion:  ref.Version(),
			Ecosystem:       ref.Ecosystem,
			Type:            inventory.FindingLowReputation,
			Severity:        inventory.SeverityMedium,
			Confidence:      rec.Confidence,
			Evidence:        []string{rec.Reasoning},
			Remediation:     []string{fmt.Sprintf("review %s's provenance before trusting it in production", ref.Name)},
			Source:          SourceReputation,
			DetectionMethod: inventory.DetectionRuleBased,
		})
	}
	return findings
}

func (d *Detector) source(eco inventory.Ecosystem) resolver.MetadataSource {
	switch eco {
	case inventory.EcosystemNPM:
		return d.cfg.NPM
	case inventory.EcosystemPyPI:
		return d.cfg.PyPI
	}
	return nil
}

var _ resolver.MetadataSource = (*datasource.NPMRegistryClient)(nil)
