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

package reputation

import (
	"math"
	"testing"
	"time"

	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/inventory"
)

var testNow = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func testScorer() *Scorer {
	return &Scorer{Now: func() time.Time { return testNow }}
}

func daysAgo(n int) time.Time { return testNow.AddDate(0, 0, -n) }

func TestScoreEstablishedPackage(t *testing.T) {
	rec := testScorer().Score(&datasource.PackageMetadata{
		Name:            "lodash",
		PublishedAt:     daysAgo(4000),
		LastUpdatedAt:   daysAgo(90),
		Author:          "John-David Dalton",
		Maintainers:     []string{"a", "b", "c"},
		WeeklyDownloads: 45_000_000,
		DownloadsKnown:  true,
		RepositoryURL:   "https://github.com/lodash/lodash",
	})

	// All four factors at 1.0 gives a perfect weighted score.
	if math.Abs(rec.Score-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0", rec.Score)
	}
	if rec.RiskLevel != inventory.RiskNone {
		t.Errorf("risk level = %q, want none", rec.RiskLevel)
	}
	if rec.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 with all factors usable", rec.Confidence)
	}
	if len(rec.RiskFactors) != 0 {
		t.Errorf("risk factors = %v, want none", rec.RiskFactors)
	}
}

func TestScoreBrandNewPackage(t *testing.T) {
	rec := testScorer().Score(&datasource.PackageMetadata{
		Name:            "freshly-published",
		PublishedAt:     daysAgo(3),
		LastUpdatedAt:   daysAgo(3),
		WeeklyDownloads: 12,
		DownloadsKnown:  true,
	})

	// age 0.2, downloads 0.2, author 0.3, maintenance 1.0
	want := 0.30*0.2 + 0.30*0.2 + 0.20*0.3 + 0.20*1.0
	if math.Abs(rec.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", rec.Score, want)
	}
	if rec.RiskLevel != inventory.RiskMedium {
		t.Errorf("risk level = %q, want medium", rec.RiskLevel)
	}
	types := map[string]bool{}
	for _, rf := range rec.RiskFactors {
		types[rf.Type] = true
	}
	for _, want := range []string{"new_package", "low_downloads", "unknown_author", "suspicious_patterns"} {
		if !types[want] {
			t.Errorf("risk factor %q missing, got %v", want, rec.RiskFactors)
		}
	}
}

func TestScoreAbandonedPackage(t *testing.T) {
	rec := testScorer().Score(&datasource.PackageMetadata{
		Name:            "old-and-idle",
		PublishedAt:     daysAgo(3000),
		LastUpdatedAt:   daysAgo(1500),
		Author:          "someone",
		WeeklyDownloads: 50_000,
		DownloadsKnown:  true,
		RepositoryURL:   "https://example.test/repo",
	})
	found := false
	for _, rf := range rec.RiskFactors {
		if rf.Type == "abandoned" {
			found = true
		}
	}
	if !found {
		t.Errorf("abandoned not flagged after 1500 idle days: %v", rec.RiskFactors)
	}
}

func TestScoreMissingSignalsNeutral(t *testing.T) {
	// PyPI without download counts and no release timeline: only the
	// author factor is usable.
	rec := testScorer().Score(&datasource.PackageMetadata{
		Name:   "sparse-metadata",
		Author: "someone",
	})
	if rec.Factors.Age != 0.5 || rec.Factors.Downloads != 0.5 || rec.Factors.Maintenance != 0.5 {
		t.Errorf("unusable factors not neutral: %+v", rec.Factors)
	}
	if rec.Confidence != 0.25 {
		t.Errorf("confidence = %v, want 0.25 with one usable factor", rec.Confidence)
	}
}

func TestScoreScopedPackageAuthor(t *testing.T) {
	rec := testScorer().Score(&datasource.PackageMetadata{
		Name:          "@angular/core",
		PublishedAt:   daysAgo(2000),
		LastUpdatedAt: daysAgo(10),
		Author:        "angular",
	})
	if rec.Factors.Author != 1.0 {
		t.Errorf("scoped package author factor = %v, want 1.0", rec.Factors.Author)
	}
}

func TestRiskLevelThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  inventory.RiskLevel
	}{
		{0.1, inventory.RiskHigh},
		{0.29, inventory.RiskHigh},
		{0.3, inventory.RiskMedium},
		{0.49, inventory.RiskMedium},
		{0.5, inventory.RiskLow},
		{0.69, inventory.RiskLow},
		{0.7, inventory.RiskNone},
		{1.0, inventory.RiskNone},
	}
	for _, tc := range tests {
		if got := riskLevel(tc.score); got != tc.want {
			t.Errorf("riskLevel(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
