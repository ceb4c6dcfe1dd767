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

package agent

import (
	"context"
	"time"
)

// Retry defaults, applied by the orchestrator rather than by agents.
const (
	DefaultMaxAttempts   = 2
	DefaultBaseDelay     = 1 * time.Second
	DefaultBackoffFactor = 2
)

// RetryPolicy controls RetryWithBackoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      int
}

// DefaultRetryPolicy returns the standard orchestrator policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Factor:      DefaultBackoffFactor,
	}
}

// RetryWithBackoff runs fn up to MaxAttempts times, sleeping
// BaseDelay × Factor^attempt between attempts. Only retryable error
// classes are retried; the last error is returned. Context cancellation
// aborts the wait immediately.
func RetryWithBackoff(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	var err error
	delay := policy.BaseDelay
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= time.Duration(policy.Factor)
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !ClassifyError(err).Retryable() {
			return err
		}
	}
	return err
}
