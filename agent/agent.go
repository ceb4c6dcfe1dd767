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

// Package agent defines the analysis-agent contract: read-only input
// context, a uniform result envelope, error classification and the
// retry policy the orchestrator applies to retryable failures.
package agent

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/vishu-2s/depscan/clients/llm"
	"github.com/vishu-2s/depscan/inventory"
	"github.com/vishu-2s/depscan/resolver"
)

// Status is the terminal state of one agent invocation.
type Status string

// Status values.
const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusTimeout Status = "TIMEOUT"
	StatusSkipped Status = "SKIPPED"
)

// ErrorType classifies an agent failure.
type ErrorType string

// ErrorType values.
const (
	ErrorTimeout            ErrorType = "timeout"
	ErrorRateLimit          ErrorType = "rate_limit"
	ErrorConnection         ErrorType = "connection"
	ErrorServiceUnavailable ErrorType = "service_unavailable"
	ErrorAuth               ErrorType = "auth"
	ErrorInvalidResponse    ErrorType = "invalid_response"
	ErrorUnknown            ErrorType = "unknown"
)

// Retryable reports whether a failure of this class may succeed on a
// fresh attempt. Auth and malformed-response failures never do.
func (e ErrorType) Retryable() bool {
	switch e {
	case ErrorTimeout, ErrorRateLimit, ErrorConnection, ErrorServiceUnavailable:
		return true
	}
	return false
}

// Context is the shared read-only input handed to every agent. The
// orchestrator populates Results in stage order, so each agent sees
// exactly the completed results of the stages before it. Agents must
// not mutate any field.
type Context struct {
	Manifest *inventory.Manifest
	Packages []inventory.PackageRef
	Graph    *resolver.Graph

	// InitialFindings are the rule-based layer's findings.
	InitialFindings []*inventory.Finding
	// Reputations holds rule-layer reputation records keyed by
	// "ecosystem/name"; empty when the rule layer skipped them at scale.
	Reputations       map[string]*inventory.ReputationRecord
	ReputationSkipped bool

	// Results holds earlier agents' results keyed by agent name.
	Results map[string]*Result
}

// ResultData returns the Data of a named prior result, or nil when the
// stage didn't run or failed without data.
func (c *Context) ResultData(agentName string) any {
	if r, ok := c.Results[agentName]; ok {
		return r.Data
	}
	return nil
}

// Result is the uniform envelope every agent invocation produces.
type Result struct {
	AgentName string        `json:"agent_name"`
	Status    Status        `json:"status"`
	Data      any           `json:"data,omitempty"`
	ErrorType ErrorType     `json:"error_type,omitempty"`
	Error     string        `json:"error,omitempty"`
	// SkipReason distinguishes a gate that never opened from a failure
	// downgrade.
	SkipReason string        `json:"skip_reason,omitempty"`
	// Fallback marks data synthesized by the orchestrator after the agent
	// itself failed terminally.
	Fallback bool          `json:"agent_fallback,omitempty"`
	Duration time.Duration `json:"-"`
	Retries  int           `json:"-"`
}

// Succeeded reports whether the agent produced its own (non-fallback)
// data.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess && !r.Fallback
}

// Agent is one analysis unit. Analyze must honor ctx cancellation,
// never panic across the boundary, and return a FAILED or TIMEOUT
// result instead of an error.
type Agent interface {
	Name() string
	Analyze(ctx context.Context, in *Context) *Result
}

// Failed builds a FAILED result for the given error, classifying it.
// A context deadline produces a TIMEOUT result instead.
func Failed(name string, err error) *Result {
	et := ClassifyError(err)
	status := StatusFailed
	if et == ErrorTimeout {
		status = StatusTimeout
	}
	return &Result{
		AgentName: name,
		Status:    status,
		ErrorType: et,
		Error:     err.Error(),
	}
}

// Skipped builds a SKIPPED result with the given reason.
func Skipped(name, reason string) *Result {
	return &Result{AgentName: name, Status: StatusSkipped, SkipReason: reason}
}

// ClassifyError maps an error to its ErrorType.
func ClassifyError(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, llm.ErrRateLimited):
		return ErrorRateLimit
	case errors.Is(err, llm.ErrAuth):
		return ErrorAuth
	case errors.Is(err, llm.ErrInvalidResponse):
		return ErrorInvalidResponse
	case errors.Is(err, llm.ErrUnavailable):
		return ErrorServiceUnavailable
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return ErrorConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTimeout
		}
		return ErrorConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorConnection
	}
	return ErrorUnknown
}
