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

package inventory

import (
	"strings"

	"github.com/ossf/osv-schema/bindings/go/osvschema"
	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

// VulnerabilityRecord is the normalized form of one OSV vulnerability as it
// appears in the final report.
type VulnerabilityRecord struct {
	ID      string   `json:"id"`
	Summary string   `json:"summary"`
	Severity Severity `json:"severity"`
	// CVSSScore is the base score parsed from the OSV severity vector,
	// or 0 when no CVSS vector was present.
	CVSSScore                float64  `json:"cvss_score,omitempty"`
	AffectedVersions         []string `json:"affected_versions"`
	FixedVersions            []string `json:"fixed_versions"`
	IsCurrentVersionAffected bool     `json:"is_current_version_affected"`
	References               []string `json:"references"`
}

// VulnerabilityFromOSV converts an OSV record into a VulnerabilityRecord.
// Queries are version-scoped so any vulnerability returned for a package
// affects the queried version.
func VulnerabilityFromOSV(v *osvschema.Vulnerability) *VulnerabilityRecord {
	summary := v.Summary
	if summary == "" {
		// Malicious-package OSV entries often only carry details.
		summary = firstLine(v.Details)
	}

	rec := &VulnerabilityRecord{
		ID:                       v.ID,
		Summary:                  summary,
		IsCurrentVersionAffected: true,
	}

	rec.CVSSScore, rec.Severity = severityFromOSV(v)

	for _, aff := range v.Affected {
		rec.AffectedVersions = append(rec.AffectedVersions, aff.Versions...)
		for _, r := range aff.Ranges {
			for _, ev := range r.Events {
				if ev.Fixed != "" {
					rec.FixedVersions = append(rec.FixedVersions, ev.Fixed)
				}
			}
		}
	}
	for _, ref := range v.References {
		if ref.URL != "" {
			rec.References = append(rec.References, ref.URL)
		}
	}
	return rec
}

// severityFromOSV derives a CVSS base score and severity rating from an OSV
// record. CVSS vectors take precedence; database-specific severity labels
// and the MAL-/GHSA- ID prefixes are the fallbacks.
func severityFromOSV(v *osvschema.Vulnerability) (float64, Severity) {
	for _, sev := range v.Severity {
		if score, ok := cvssBaseScore(sev); ok {
			return score, SeverityFromCVSS(score)
		}
	}
	if label, ok := v.DatabaseSpecific["severity"].(string); ok {
		return 0, ParseSeverity(label)
	}
	if strings.HasPrefix(v.ID, "MAL-") {
		// OSV's malicious-package database doesn't attach CVSS vectors.
		return 0, SeverityCritical
	}
	return 0, SeverityMedium
}

func cvssBaseScore(sev osvschema.Severity) (float64, bool) {
	switch sev.Type {
	case osvschema.SeverityCVSSV2:
		vec, err := gocvss20.ParseVector(sev.Score)
		if err != nil {
			return 0, false
		}
		return vec.BaseScore(), true
	case osvschema.SeverityCVSSV3:
		if strings.HasPrefix(sev.Score, "CVSS:3.0/") {
			vec, err := gocvss30.ParseVector(sev.Score)
			if err != nil {
				return 0, false
			}
			return vec.BaseScore(), true
		}
		vec, err := gocvss31.ParseVector(sev.Score)
		if err != nil {
			return 0, false
		}
		return vec.BaseScore(), true
	case osvschema.SeverityCVSSV4:
		vec, err := gocvss40.ParseVector(sev.Score)
		if err != nil {
			return 0, false
		}
		return vec.Score(), true
	}
	return 0, false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 200
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}
