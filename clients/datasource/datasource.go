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

// Package datasource fetches package metadata from the npm and PyPI
// registries. Requests are rate limited per host with a token bucket,
// retried with exponential backoff on transport failures, deduplicated
// in-flight and cached by (host, name, version).
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vishu-2s/depscan/cache"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

var (
	// ErrNotFound is returned when the registry has no such package or
	// version. It is a semantically empty result, not a transport failure.
	ErrNotFound = errors.New("package not found in registry")
	// errAPIFailed wraps transport-level registry failures.
	errAPIFailed = errors.New("registry query failed")
)

const (
	defaultRequestsPerSecond = 10
	defaultMaxRetries        = 2
	defaultBackoffBase       = 1 * time.Second
	registryCacheTTL         = cache.DefaultTTL
)

// PackageMetadata is the registry-normalized metadata for one package
// version.
type PackageMetadata struct {
	Ecosystem inventory.Ecosystem `json:"ecosystem"`
	Name      string              `json:"name"`
	Version   string              `json:"version"`
	// PublishedAt is the first publish time of any version of the package.
	PublishedAt time.Time `json:"published_at"`
	// LastUpdatedAt is the most recent publish time.
	LastUpdatedAt   time.Time         `json:"last_updated_at"`
	Author          string            `json:"author,omitempty"`
	Maintainers     []string          `json:"maintainers,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	WeeklyDownloads int64             `json:"weekly_downloads,omitempty"`
	// DownloadsKnown distinguishes "zero downloads" from "no data".
	DownloadsKnown bool   `json:"downloads_known"`
	RepositoryURL  string `json:"repository_url,omitempty"`
}

// Config holds the shared settings of the registry clients.
type Config struct {
	// Cache persists raw registry responses across runs. Nil disables it.
	Cache cache.Store
	// RequestsPerSecond bounds the request rate per registry host.
	RequestsPerSecond float64
	// MaxRetries bounds retries of transport failures per request.
	MaxRetries int
	HTTPClient *http.Client
	UserAgent  string
}

// DefaultConfig returns the default registry client configuration.
func DefaultConfig() Config {
	return Config{
		Cache:             cache.Noop{},
		RequestsPerSecond: defaultRequestsPerSecond,
		MaxRetries:        defaultMaxRetries,
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		UserAgent:         "depscan",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Cache == nil {
		c.Cache = d.Cache
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.HTTPClient == nil {
		c.HTTPClient = d.HTTPClient
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}

// httpSource is the rate-limited, retrying, cached GET shared by the npm
// and PyPI clients.
type httpSource struct {
	cfg     Config
	limiter *rate.Limiter
	// inflight deduplicates concurrent fetches of the same URL.
	inflight *RequestCache[string, []byte]
	host     string
}

func newHTTPSource(cfg Config, host string) *httpSource {
	cfg = cfg.withDefaults()
	return &httpSource{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		inflight: NewRequestCache[string, []byte](),
		host:     host,
	}
}

// get fetches url, consulting the persistent cache first. 404 returns
// ErrNotFound; other failures are retried then wrapped in errAPIFailed.
func (s *httpSource) get(ctx context.Context, url string, accept string) ([]byte, error) {
	cacheKey := cache.Key(s.host, url)
	if body, ok := s.cfg.Cache.Get(cacheKey); ok {
		return body, nil
	}
	body, err := s.inflight.Get(url, func() ([]byte, error) {
		return s.getWithRetry(ctx, url, accept)
	})
	if err != nil {
		return nil, err
	}
	s.cfg.Cache.Put(cacheKey, body, registryCacheTTL)
	return body, nil
}

func (s *httpSource) getWithRetry(ctx context.Context, url string, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := defaultBackoffBase * (1 << (attempt - 1))
			log.Debugf("registry: retrying %s in %v (attempt %d)", url, delay, attempt+1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		body, retryable, err := s.getOnce(ctx, url, accept)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *httpSource) getOnce(ctx context.Context, url string, accept string) (body []byte, retryable bool, err error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %w", errAPIFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d for %s", errAPIFailed, resp.StatusCode, url)
	default:
		return nil, false, fmt.Errorf("%w: status %d for %s", errAPIFailed, resp.StatusCode, url)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: reading body: %w", errAPIFailed, err)
	}
	return b, false, nil
}
