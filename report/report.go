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

// Package report defines the fixed output schema of an analysis run, the
// deterministic fallback synthesizer that fills it when the synthesis
// agent cannot, and the atomic writer for the report file.
package report

import (
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/resolver"
)

// FileName is the fixed report file name; the downstream viewer reads
// exactly this path under the output directory.
const FileName = "demo_ui_comprehensive_report.json"

// Report is the complete output document.
type Report struct {
	Metadata         Metadata             `json:"metadata"`
	Summary          Summary              `json:"summary"`
	RuleBased        RuleBased            `json:"github_rule_based"`
	DependencyGraph  DependencyGraph      `json:"dependency_graph"`
	SupplyChain      *SupplyChainAnalysis `json:"supply_chain_analysis,omitempty"`
	CodeAnalysis     *CodeAnalysis        `json:"code_analysis,omitempty"`
	SecurityFindings SecurityFindings     `json:"security_findings"`
	Recommendations  Recommendations      `json:"recommendations"`
	RiskAssessment   *RiskAssessment      `json:"risk_assessment,omitempty"`
	AgentInsights    AgentInsights        `json:"agent_insights"`
	Performance      PerformanceMetrics   `json:"performance_metrics"`
}

// Metadata describes the run itself.
type Metadata struct {
	AnalysisID           string       `json:"analysis_id"`
	Target               string       `json:"target"`
	Timestamp            string       `json:"timestamp"`
	Ecosystem            string       `json:"ecosystem"`
	InputMode            string       `json:"input_mode"`
	AnalysisStatus       string       `json:"analysis_status"`
	Confidence           float64      `json:"confidence"`
	AgentAnalysisEnabled bool         `json:"agent_analysis_enabled"`
	DegradationReason    string       `json:"degradation_reason,omitempty"`
	MissingAnalysis      []string     `json:"missing_analysis,omitempty"`
	ErrorSummary         []AgentError `json:"error_summary,omitempty"`
}

// AgentError is one degraded agent's error record.
type AgentError struct {
	Agent string `json:"agent"`
	Error string `json:"error"`
	Type  string `json:"type"`
}

// Summary holds the finding counts.
type Summary struct {
	TotalPackages        int `json:"total_packages"`
	PackagesWithFindings int `json:"packages_with_findings"`
	TotalFindings        int `json:"total_findings"`
	CriticalFindings     int `json:"critical_findings"`
	HighFindings         int `json:"high_findings"`
	MediumFindings       int `json:"medium_findings"`
	LowFindings          int `json:"low_findings"`
}

// RuleBased summarizes the deterministic detection layer.
type RuleBased struct {
	Description        string           `json:"description"`
	Confidence         float64          `json:"confidence"`
	TotalPackages      int              `json:"total_packages"`
	PackagesWithIssues int              `json:"packages_with_issues"`
	TotalIssues        int              `json:"total_issues"`
	DetectionMethods   DetectionMethods `json:"detection_methods"`
}

// DetectionMethods describes each rule-layer subcomponent's status.
type DetectionMethods struct {
	OSVAPI            string `json:"osv_api"`
	MaliciousPackages string `json:"malicious_packages"`
	Typosquatting     string `json:"typosquatting"`
	PatternAnalysis   string `json:"pattern_analysis"`
}

// DependencyGraph summarizes the resolver output.
type DependencyGraph struct {
	Applicable            bool         `json:"applicable"`
	TotalPackages         int          `json:"total_packages"`
	CircularDependencies  CycleSummary `json:"circular_dependencies"`
	VersionConflicts      ConflictSummary `json:"version_conflicts"`
}

// CycleSummary lists circular dependencies.
type CycleSummary struct {
	Count   int              `json:"count"`
	Details []resolver.Cycle `json:"details"`
}

// ConflictSummary lists version conflicts.
type ConflictSummary struct {
	Count   int                 `json:"count"`
	Details []resolver.Conflict `json:"details"`
}

// SupplyChainAnalysis carries the supply-chain agent's section.
type SupplyChainAnalysis struct {
	Applicable            bool    `json:"applicable"`
	Description           string  `json:"description"`
	TotalPackagesAnalyzed int     `json:"total_packages_analyzed"`
	AttacksDetected       int     `json:"attacks_detected"`
	Packages              []any   `json:"packages"`
	Confidence            float64 `json:"confidence"`
	Source                string  `json:"source"`
}

// CodeAnalysis carries the code agent's section.
type CodeAnalysis struct {
	Applicable            bool    `json:"applicable"`
	Description           string  `json:"description"`
	TotalPackagesAnalyzed int     `json:"total_packages_analyzed"`
	CodeIssuesFound       int     `json:"code_issues_found"`
	Packages              []any   `json:"packages"`
	Confidence            float64 `json:"confidence"`
	Source                string  `json:"source"`
}

// SecurityFindings groups findings by package.
type SecurityFindings struct {
	Packages []*PackageFindings `json:"packages"`
}

// PackageFindings is one package's grouped security data.
type PackageFindings struct {
	Name            string                          `json:"name"`
	Version         string                          `json:"version"`
	Ecosystem       string                          `json:"ecosystem"`
	Findings        []*inventory.Finding            `json:"findings"`
	Vulnerabilities []*inventory.VulnerabilityRecord `json:"vulnerabilities,omitempty"`
	ReputationScore *float64                        `json:"reputation_score,omitempty"`
	RiskFactors     []inventory.RiskFactor          `json:"risk_factors,omitempty"`
	RiskScore       float64                         `json:"risk_score"`
	RiskLevel       string                          `json:"risk_level"`
}

// Recommendations partitions remediation advice by urgency.
type Recommendations struct {
	ImmediateActions   []string `json:"immediate_actions"`
	PreventiveMeasures []string `json:"preventive_measures"`
	Monitoring         []string `json:"monitoring"`
}

// RiskAssessment is the synthesized overall judgement.
type RiskAssessment struct {
	OverallRiskLevel string `json:"overall_risk_level"`
	Assessment       string `json:"assessment"`
}

// AgentInsights records how the agent pipeline fared.
type AgentInsights struct {
	SuccessfulAgents []string               `json:"successful_agents"`
	FailedAgents     []AgentError           `json:"failed_agents"`
	DegradationLevel string                 `json:"degradation_level"`
	AgentDetails     map[string]AgentDetail `json:"agent_details"`
}

// AgentDetail is one agent's per-run accounting.
type AgentDetail struct {
	Success          bool    `json:"success"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Confidence       float64 `json:"confidence"`
	PackagesAnalyzed int     `json:"packages_analyzed"`
	FindingsCount    int     `json:"findings_count"`
	Error            string  `json:"error,omitempty"`
}

// PerformanceMetrics holds run timing and volume counters.
type PerformanceMetrics struct {
	TotalDurationSeconds float64            `json:"total_duration_seconds"`
	AgentDurations       map[string]float64 `json:"agent_durations"`
	CacheHits            int64              `json:"cache_hits"`
	PackagesAnalyzed     int                `json:"packages_analyzed"`
	TotalFindings        int                `json:"total_findings"`
}
