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

// Package reputation scores registry metadata into a trust signal per
// package. Scores are heuristic, not verdicts; low scores surface
// packages for closer review.
package reputation

import (
	"fmt"
	"strings"
	"time"

	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/inventory"
)

// Factor weights. Age and adoption dominate; authorship and maintenance
// refine.
const (
	weightAge         = 0.30
	weightDownloads   = 0.30
	weightAuthor      = 0.20
	weightMaintenance = 0.20
)

// Scorer turns package metadata into reputation records. The zero value
// is usable; Now is replaceable for tests.
type Scorer struct {
	Now func() time.Time
}

func (s *Scorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Score computes the reputation record for one package's metadata.
func (s *Scorer) Score(meta *datasource.PackageMetadata) *inventory.ReputationRecord {
	now := s.now()
	rec := &inventory.ReputationRecord{}
	usable := 0

	ageScore, ageDays, ageOK := s.ageScore(meta, now)
	if ageOK {
		usable++
		rec.Factors.Age = ageScore
		if ageDays < 30 {
			s.addRisk(rec, "new_package", inventory.SeverityMedium,
				fmt.Sprintf("first published %d days ago", ageDays))
		}
	} else {
		rec.Factors.Age = neutral
	}

	dlScore, dlOK := downloadScore(meta)
	if dlOK {
		usable++
		rec.Factors.Downloads = dlScore
		if dlScore < 0.3 {
			s.addRisk(rec, "low_downloads", inventory.SeverityLow,
				fmt.Sprintf("only %d weekly downloads", meta.WeeklyDownloads))
		}
	} else {
		rec.Factors.Downloads = neutral
	}

	authorScore, authorOK := authorScore(meta)
	if authorOK {
		usable++
		rec.Factors.Author = authorScore
		if authorScore < 0.4 {
			s.addRisk(rec, "unknown_author", inventory.SeverityLow,
				"no identifiable author or maintainer history")
		}
	} else {
		rec.Factors.Author = neutral
	}

	maintScore, staleDays, maintOK := s.maintenanceScore(meta, now)
	if maintOK {
		usable++
		rec.Factors.Maintenance = maintScore
		if maintScore < 0.3 {
			s.addRisk(rec, "abandoned", inventory.SeverityMedium,
				fmt.Sprintf("no release in %d days", staleDays))
		}
	} else {
		rec.Factors.Maintenance = neutral
	}

	if hasMetadataAnomalies(meta) {
		s.addRisk(rec, "suspicious_patterns", inventory.SeverityMedium,
			"metadata anomalies: no repository URL and minimal author identity")
	}

	rec.Score = weightAge*rec.Factors.Age +
		weightDownloads*rec.Factors.Downloads +
		weightAuthor*rec.Factors.Author +
		weightMaintenance*rec.Factors.Maintenance
	rec.RiskLevel = riskLevel(rec.Score)
	rec.Confidence = float64(usable) / 4
	rec.Reasoning = reasoning(rec)
	return rec
}

// neutral is substituted for factors with no usable input so a single
// missing signal doesn't dominate the weighted sum.
const neutral = 0.5

func (s *Scorer) addRisk(rec *inventory.ReputationRecord, typ string, sev inventory.Severity, desc string) {
	rec.RiskFactors = append(rec.RiskFactors, inventory.RiskFactor{
		Type:        typ,
		Severity:    string(sev),
		Description: desc,
	})
}

func (s *Scorer) ageScore(meta *datasource.PackageMetadata, now time.Time) (score float64, days int, ok bool) {
	if meta.PublishedAt.IsZero() {
		return 0, 0, false
	}
	days = int(now.Sub(meta.PublishedAt).Hours() / 24)
	switch {
	case days < 30:
		return 0.2, days, true
	case days < 90:
		return 0.4, days, true
	case days < 365:
		return 0.7, days, true
	case days < 730:
		return 0.85, days, true
	default:
		return 1.0, days, true
	}
}

func downloadScore(meta *datasource.PackageMetadata) (float64, bool) {
	if !meta.DownloadsKnown {
		return 0, false
	}
	switch n := meta.WeeklyDownloads; {
	case n < 100:
		return 0.2, true
	case n < 1_000:
		return 0.4, true
	case n < 10_000:
		return 0.7, true
	case n < 100_000:
		return 0.85, true
	default:
		return 1.0, true
	}
}

// authorScore grades authorship identity. Registries don't expose
// organization verification directly, so a scoped org account or several
// maintainers stands in for it.
func authorScore(meta *datasource.PackageMetadata) (float64, bool) {
	if meta.Author == "" && len(meta.Maintainers) == 0 {
		return 0.3, true
	}
	if strings.HasPrefix(meta.Name, "@") || len(meta.Maintainers) >= 3 {
		return 1.0, true
	}
	if len(meta.Maintainers) >= 2 {
		return 0.7, true
	}
	return 0.5, true
}

func (s *Scorer) maintenanceScore(meta *datasource.PackageMetadata, now time.Time) (score float64, days int, ok bool) {
	if meta.LastUpdatedAt.IsZero() {
		return 0, 0, false
	}
	days = int(now.Sub(meta.LastUpdatedAt).Hours() / 24)
	switch {
	case days < 180:
		return 1.0, days, true
	case days < 365:
		return 0.7, days, true
	case days < 730:
		return 0.4, days, true
	default:
		return 0.2, days, true
	}
}

// hasMetadataAnomalies flags combinations that legitimate packages rarely
// exhibit, like no repository link plus a throwaway author identity.
func hasMetadataAnomalies(meta *datasource.PackageMetadata) bool {
	if meta.RepositoryURL != "" {
		return false
	}
	author := strings.TrimSpace(meta.Author)
	return len(author) <= 1 && len(meta.Maintainers) <= 1
}

func riskLevel(score float64) inventory.RiskLevel {
	switch {
	case score < 0.3:
		return inventory.RiskHigh
	case score < 0.5:
		return inventory.RiskMedium
	case score < 0.7:
		return inventory.RiskLow
	default:
		return inventory.RiskNone
	}
}

func reasoning(rec *inventory.ReputationRecord) string {
	if len(rec.RiskFactors) == 0 {
		return fmt.Sprintf("score %.2f, no risk factors", rec.Score)
	}
	types := make([]string, len(rec.RiskFactors))
	for i, rf := range rec.RiskFactors {
		types[i] = rf.Type
	}
	return fmt.Sprintf("score %.2f, risk factors: %s", rec.Score, strings.Join(types, ", "))
}
