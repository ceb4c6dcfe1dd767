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

package datasource

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vishu-2s/depscan/inventory"
)

const pyPIAPI = "https://pypi.org"

// PyPIRegistryClient fetches package metadata from the PyPI JSON API.
type PyPIRegistryClient struct {
	source  *httpSource
	baseURL string
}

// NewPyPIRegistryClient returns a new PyPIRegistryClient.
func NewPyPIRegistryClient(cfg Config) *PyPIRegistryClient {
	return &PyPIRegistryClient{
		source:  newHTTPSource(cfg, "pypi.org"),
		baseURL: pyPIAPI,
	}
}

// SetBaseURL overrides the registry endpoint, for tests.
func (c *PyPIRegistryClient) SetBaseURL(baseURL string) { c.baseURL = baseURL }

// Metadata returns the normalized metadata for a package. The project-level
// document carries the full release timeline, so it is fetched regardless
// of the requested version.
func (c *PyPIRegistryClient) Metadata(ctx context.Context, name, version string) (*PackageMetadata, error) {
	body, err := c.source.get(ctx, c.baseURL+"/pypi/"+url.PathEscape(name)+"/json", "")
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)

	if version == "" {
		version = doc.Get("info.version").String()
	}

	meta := &PackageMetadata{
		Ecosystem:     inventory.EcosystemPyPI,
		Name:          name,
		Version:       version,
		Author:        pypiAuthor(doc),
		Dependencies:  requiresDistDeps(doc.Get("info.requires_dist")),
		RepositoryURL: pypiRepositoryURL(doc),
	}
	if m := doc.Get("info.maintainer").String(); m != "" {
		meta.Maintainers = []string{m}
	}

	first, last := releaseTimeline(doc.Get("releases"))
	meta.PublishedAt = first
	meta.LastUpdatedAt = last

	// PyPI's JSON API stopped serving real download counts; when the
	// last_week field is present and positive we use it, otherwise the
	// count is unknown and the reputation scorer lowers its confidence.
	if dl := doc.Get("info.downloads.last_week"); dl.Exists() && dl.Int() > 0 {
		meta.WeeklyDownloads = dl.Int()
		meta.DownloadsKnown = true
	}
	return meta, nil
}

func pypiAuthor(doc gjson.Result) string {
	if a := doc.Get("info.author").String(); a != "" {
		return a
	}
	// PEP 621 projects often only set author_email "Name <addr>".
	email := doc.Get("info.author_email").String()
	if i := strings.IndexByte(email, '<'); i > 0 {
		return strings.TrimSpace(email[:i])
	}
	return ""
}

func pypiRepositoryURL(doc gjson.Result) string {
	for _, key := range []string{"Source", "Repository", "Homepage"} {
		if u := doc.Get("info.project_urls." + key).String(); u != "" {
			return u
		}
	}
	return doc.Get("info.home_page").String()
}

// releaseTimeline returns the first and last upload times across all
// releases.
func releaseTimeline(releases gjson.Result) (first, last time.Time) {
	releases.ForEach(func(_, files gjson.Result) bool {
		for _, f := range files.Array() {
			t := parseTime(f.Get("upload_time_iso_8601").String())
			if t.IsZero() {
				continue
			}
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
		return true
	})
	return first, last
}

// requiresDistDeps converts PEP 508 requires_dist entries into a
// name -> constraint map, skipping extras-only requirements.
func requiresDistDeps(v gjson.Result) map[string]string {
	deps := map[string]string{}
	for _, entry := range v.Array() {
		req := entry.String()
		spec, marker, _ := strings.Cut(req, ";")
		if strings.Contains(marker, "extra ==") {
			continue
		}
		spec = strings.TrimSpace(spec)
		name := spec
		for i, r := range spec {
			if strings.ContainsRune(" (<>=!~[", r) {
				name = spec[:i]
				break
			}
		}
		if name == "" {
			continue
		}
		constraint := strings.Trim(strings.TrimSpace(spec[len(name):]), "()")
		deps[name] = constraint
	}
	if len(deps) == 0 {
		return nil
	}
	return deps
}
