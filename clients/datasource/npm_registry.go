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
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

const (
	npmRegistryAPI  = "https://registry.npmjs.org"
	npmDownloadsAPI = "https://api.npmjs.org"
)

// NPMRegistryClient fetches package metadata from the npm registry.
type NPMRegistryClient struct {
	registry  *httpSource
	downloads *httpSource
	// registryURL and downloadsURL are overridable for tests.
	registryURL  string
	downloadsURL string
}

// NewNPMRegistryClient returns a new NPMRegistryClient.
func NewNPMRegistryClient(cfg Config) *NPMRegistryClient {
	return &NPMRegistryClient{
		registry:     newHTTPSource(cfg, "registry.npmjs.org"),
		downloads:    newHTTPSource(cfg, "api.npmjs.org"),
		registryURL:  npmRegistryAPI,
		downloadsURL: npmDownloadsAPI,
	}
}

// SetBaseURLs overrides the registry endpoints, for tests.
func (c *NPMRegistryClient) SetBaseURLs(registryURL, downloadsURL string) {
	c.registryURL = registryURL
	c.downloadsURL = downloadsURL
}

// Metadata returns the normalized metadata for a package. When version is
// empty the registry's latest dist-tag is used.
func (c *NPMRegistryClient) Metadata(ctx context.Context, name, version string) (*PackageMetadata, error) {
	body, err := c.registry.get(ctx, c.registryURL+"/"+url.PathEscape(name), "")
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)

	if version == "" {
		version = doc.Get("dist-tags.latest").String()
	}
	verDoc := doc.Get("versions." + gjsonEscape(version))
	if !verDoc.Exists() {
		// The package exists but not at this version; fall back to latest
		// so reputation signals are still usable.
		latest := doc.Get("dist-tags.latest").String()
		if latest == "" {
			return nil, fmt.Errorf("npm package %s: %w", name, ErrNotFound)
		}
		log.Debugf("npm: %s@%s not published, using metadata of %s", name, version, latest)
		version = latest
		verDoc = doc.Get("versions." + gjsonEscape(version))
	}

	meta := &PackageMetadata{
		Ecosystem:     inventory.EcosystemNPM,
		Name:          name,
		Version:       version,
		PublishedAt:   parseTime(doc.Get("time.created").String()),
		LastUpdatedAt: parseTime(doc.Get("time.modified").String()),
		Author:        personName(doc.Get("author")),
		Dependencies:  stringMap(verDoc.Get("dependencies")),
		RepositoryURL: repositoryURL(doc.Get("repository")),
	}
	for _, m := range doc.Get("maintainers").Array() {
		if n := personName(m); n != "" {
			meta.Maintainers = append(meta.Maintainers, n)
		}
	}

	// Weekly downloads are served by a separate API; a failure there only
	// degrades the reputation confidence.
	dlBody, err := c.downloads.get(ctx, c.downloadsURL+"/downloads/point/last-week/"+url.PathEscape(name), "")
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Debugf("npm: downloads for %s unavailable: %v", name, err)
		}
	} else {
		meta.WeeklyDownloads = gjson.GetBytes(dlBody, "downloads").Int()
		meta.DownloadsKnown = true
	}
	return meta, nil
}

// personName extracts a name from npm's person fields, which are either a
// bare string or an object with a name key.
func personName(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Get("name").String()
}

func repositoryURL(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Get("url").String()
}

func stringMap(v gjson.Result) map[string]string {
	mp := v.Map()
	if len(mp) == 0 {
		return nil
	}
	out := make(map[string]string, len(mp))
	for k, s := range mp {
		out[k] = s.String()
	}
	return out
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// gjsonEscape escapes a version string for use inside a gjson path.
func gjsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '*', '?', '\\', '|', '#', '@':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
