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

// Package llm is a minimal chat-completions client used for the optional
// model-assisted analysis stages. Responses are requested in JSON mode and
// unmarshalled into caller-provided types; anything that fails to parse is
// an invalid response, never a partial result. Completions are cached by
// prompt content hash so identical inputs are analyzed at most once.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vishu-2s/depscan/cache"
)

// Error classes surfaced to the agent layer.
var (
	// ErrUnavailable means no API key is configured; callers skip
	// enrichment instead of failing.
	ErrUnavailable = errors.New("llm: not configured")
	// ErrAuth means the provider rejected the credentials.
	ErrAuth = errors.New("llm: authentication failed")
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrInvalidResponse means the completion was not the requested JSON.
	ErrInvalidResponse = errors.New("llm: invalid response")
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	llmCacheTTL    = 7 * 24 * time.Hour
)

// Config holds the LLM client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Cache memoizes completions by prompt hash. Nil disables it.
	Cache      cache.Store
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration. The API key is
// intentionally empty; it comes from the environment at process startup.
func DefaultConfig() Config {
	return Config{
		BaseURL:    defaultBaseURL,
		Model:      defaultModel,
		Cache:      cache.Noop{},
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Client talks to a chat-completions endpoint.
type Client struct {
	cfg Config
}

// New creates a Client, filling unset config fields with defaults.
func New(cfg Config) *Client {
	d := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.Cache == nil {
		cfg.Cache = d.Cache
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = d.HTTPClient
	}
	return &Client{cfg: cfg}
}

// Available reports whether the client has credentials to use.
func (c *Client) Available() bool { return c != nil && c.cfg.APIKey != "" }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

// GenerateObject sends a system+user prompt, requests a JSON object
// response and unmarshals it into out. A completion that is not valid
// JSON for out returns ErrInvalidResponse.
func (c *Client) GenerateObject(ctx context.Context, system, user string, out any) error {
	if !c.Available() {
		return ErrUnavailable
	}

	cacheKey := cache.Key("llm", c.cfg.Model+"\x00"+system+"\x00"+user)
	if body, ok := c.cfg.Cache.Get(cacheKey); ok {
		if json.Unmarshal(body, out) == nil {
			return nil
		}
	}

	content, err := c.complete(ctx, system, user)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	c.cfg.Cache.Put(cacheKey, []byte(content), llmCacheTTL)
	return nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	default:
		return "", fmt.Errorf("llm: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: reading response: %w", err)
	}
	content := gjson.GetBytes(raw, "choices.0.message.content").String()
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	return content, nil
}
