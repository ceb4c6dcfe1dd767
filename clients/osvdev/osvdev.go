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

// Package osvdev queries the OSV.dev API for known vulnerabilities in a
// batch of packages. Queries fan out with bounded concurrency and a
// per-request timeout; a DNS reachability probe up front makes offline
// runs fail fast instead of timing out per package.
package osvdev

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ossf/osv-schema/bindings/go/osvschema"
	"golang.org/x/sync/errgroup"

	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/log"
)

const (
	defaultBaseURL        = "https://api.osv.dev/v1"
	defaultProbeHost      = "api.osv.dev"
	defaultConcurrency    = 10
	defaultRequestTimeout = 10 * time.Second
	defaultMaxRetries     = 2
	defaultBackoffBase    = 1 * time.Second
	// dnsProbeTimeout bounds the reachability probe so the offline path
	// stays well under a second.
	dnsProbeTimeout = 800 * time.Millisecond
)

// Config holds the settings of the OSV client.
type Config struct {
	BaseURL string
	// Concurrency bounds the number of in-flight queries.
	Concurrency    int
	RequestTimeout time.Duration
	MaxRetries     int
	HTTPClient     *http.Client
	// ProbeHost is the hostname resolved by the reachability probe.
	ProbeHost string
	// LookupHost is replaceable for offline tests.
	LookupHost func(ctx context.Context, host string) ([]string, error)
}

// DefaultConfig returns the default OSV client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        defaultBaseURL,
		Concurrency:    defaultConcurrency,
		RequestTimeout: defaultRequestTimeout,
		MaxRetries:     defaultMaxRetries,
		HTTPClient:     http.DefaultClient,
		ProbeHost:      defaultProbeHost,
		LookupHost:     net.DefaultResolver.LookupHost,
	}
}

// Client is a parallel OSV.dev API client.
type Client struct {
	cfg Config
}

// New creates a Client, filling unset config fields with defaults.
func New(cfg Config) *Client {
	d := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = d.RequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = d.HTTPClient
	}
	if cfg.ProbeHost == "" {
		cfg.ProbeHost = d.ProbeHost
	}
	if cfg.LookupHost == nil {
		cfg.LookupHost = d.LookupHost
	}
	return &Client{cfg: cfg}
}

// PackageResult holds the vulnerabilities found for one queried package.
// Err is set when the query for this package ultimately failed; its vuln
// list is then empty rather than unknown.
type PackageResult struct {
	Ref   inventory.PackageRef
	Vulns []*inventory.VulnerabilityRecord
	Err   string
}

// BatchResult holds per-package results in the same order as the queried
// refs.
type BatchResult struct {
	Results []PackageResult
	// Offline is true when the reachability probe failed and no queries
	// were attempted.
	Offline bool
}

// ByRef returns the results indexed by package ref.
func (b *BatchResult) ByRef() map[inventory.PackageRef][]*inventory.VulnerabilityRecord {
	out := make(map[inventory.PackageRef][]*inventory.VulnerabilityRecord, len(b.Results))
	for _, r := range b.Results {
		out[r.Ref] = r.Vulns
	}
	return out
}

// Reachable probes DNS resolution of the OSV API host. The probe is
// bounded so an offline machine answers in well under a second.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, dnsProbeTimeout)
	defer cancel()
	_, err := c.cfg.LookupHost(ctx, c.cfg.ProbeHost)
	return err == nil
}

// QueryBatch queries OSV for every ref. The result always has exactly one
// entry per input ref, in input order; individual failures yield an empty
// vulnerability list with the error recorded on that entry.
func (c *Client) QueryBatch(ctx context.Context, refs []inventory.PackageRef) *BatchResult {
	res := &BatchResult{Results: make([]PackageResult, len(refs))}
	for i, ref := range refs {
		res.Results[i].Ref = ref
	}
	if len(refs) == 0 {
		return res
	}

	if !c.Reachable(ctx) {
		log.Warnf("osv: %s unreachable, assuming offline and skipping %d queries", c.cfg.ProbeHost, len(refs))
		res.Offline = true
		return res
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i := range refs {
		g.Go(func() error {
			vulns, err := c.queryWithRetry(gctx, refs[i])
			if err != nil {
				res.Results[i].Err = err.Error()
				// A single failing package must not sink the batch.
				return nil
			}
			res.Results[i].Vulns = vulns
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed := 0, 0
	for _, r := range res.Results {
		if r.Err == "" {
			succeeded++
		} else {
			failed++
		}
	}
	dur := time.Since(start)
	log.Infof("osv: batch done: %d succeeded, %d failed, %v total (%.1f pkg/s)",
		succeeded, failed, dur.Round(time.Millisecond), float64(len(refs))/dur.Seconds())
	return res
}

func (c *Client) queryWithRetry(ctx context.Context, ref inventory.PackageRef) ([]*inventory.VulnerabilityRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := defaultBackoffBase * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		vulns, retryable, err := c.queryOnce(ctx, ref)
		if err == nil {
			return vulns, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// osvQuery is the request body of POST /v1/query.
type osvQuery struct {
	Package osvQueryPackage `json:"package"`
	Version string          `json:"version,omitempty"`
}

type osvQueryPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type osvQueryResponse struct {
	Vulns []*osvschema.Vulnerability `json:"vulns"`
}

func (c *Client) queryOnce(ctx context.Context, ref inventory.PackageRef) (vulns []*inventory.VulnerabilityRecord, retryable bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(osvQuery{
		Package: osvQueryPackage{Name: ref.Name, Ecosystem: ref.Ecosystem.OSVName()},
		Version: ref.Version(),
	})
	if err != nil {
		return nil, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("osv query for %s: %w", ref, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		// Unknown package means no known vulnerabilities.
		return nil, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("osv query for %s: status %d", ref, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("osv query for %s: status %d", ref, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("osv query for %s: reading body: %w", ref, err)
	}
	var parsed osvQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false, fmt.Errorf("osv query for %s: decoding response: %w", ref, err)
	}
	for _, v := range parsed.Vulns {
		vulns = append(vulns, inventory.VulnerabilityFromOSV(v))
	}
	return vulns, false, nil
}
