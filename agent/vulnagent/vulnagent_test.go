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

package vulnagent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vishu-2s/depscan/agent"
	"github.com/vishu-2s/depscan/clients/osvdev"
	"github.com/vishu-2s/depscan/inventory"
)

func npmRef(name, version string) inventory.PackageRef {
	return inventory.PackageRef{Ecosystem: inventory.EcosystemNPM, Name: name, ResolvedVersion: version}
}

func TestAnalyzeOfflineSucceeds(t *testing.T) {
	cfg := osvdev.DefaultConfig()
	cfg.LookupHost = func(context.Context, string) ([]string, error) {
		return nil, errors.New("no network")
	}
	a := New(Config{OSV: osvdev.New(cfg)})

	in := &agent.Context{Packages: []inventory.PackageRef{npmRef("lodash", "4.17.21")}}
	res := a.Analyze(context.Background(), in)
	if res.Status != agent.StatusSuccess {
		t.Fatalf("offline status = %s, want SUCCESS: %s", res.Status, res.Error)
	}
	data := res.Data.(*Data)
	if !data.Offline {
		t.Error("Offline = false with unreachable API")
	}
	if len(data.Packages) != 1 || len(data.Packages[0].Vulnerabilities) != 0 {
		t.Errorf("offline data = %+v, want one empty entry", data.Packages)
	}
}

func TestAnalyzeOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"vulns": [
			{"id": "GHSA-aaaa-bbbb-cccc", "summary": "prototype pollution"},
			{"id": "GHSA-dddd-eeee-ffff", "summary": "command injection"}
		]}`)
	}))
	defer srv.Close()

	cfg := osvdev.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.LookupHost = func(context.Context, string) ([]string, error) {
		return []string{"127.0.0.1"}, nil
	}
	a := New(Config{OSV: osvdev.New(cfg)})

	in := &agent.Context{Packages: []inventory.PackageRef{npmRef("vulnerable", "1.0.0")}}
	data := a.Analyze(context.Background(), in).Data.(*Data)
	p := data.Packages[0]
	if p.VulnerabilityCount != 2 {
		t.Errorf("vulnerability count = %d, want 2", p.VulnerabilityCount)
	}
	if p.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", p.Confidence)
	}
	if p.LLMAssessment != nil {
		t.Error("assessment present without a configured model")
	}
}

func TestFindings(t *testing.T) {
	data := &Data{Packages: []*PackageReport{{
		Ref:        npmRef("vulnerable", "1.0.0"),
		Confidence: 0.9,
		Vulnerabilities: []*inventory.VulnerabilityRecord{
			{ID: "GHSA-1", Summary: "bad", Severity: inventory.SeverityHigh, FixedVersions: []string{"1.0.1"}},
			{ID: "GHSA-2", Summary: "worse", Severity: inventory.SeverityCritical},
		},
	}}}
	findings := data.Findings()
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want one per vulnerability", len(findings))
	}
	for _, f := range findings {
		if f.Type != inventory.FindingVulnerability || f.Source != "osv_api" {
			t.Errorf("finding = %+v", f)
		}
		if f.DetectionMethod != inventory.DetectionAgent {
			t.Errorf("detection method = %q", f.DetectionMethod)
		}
	}
	if got := findings[0].Remediation[0]; got != "upgrade to 1.0.1" {
		t.Errorf("remediation = %q", got)
	}
	if got := findings[1].Remediation[0]; got != "no fixed version published yet" {
		t.Errorf("remediation without fix = %q", got)
	}
}
