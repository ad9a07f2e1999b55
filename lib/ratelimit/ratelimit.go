// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit provides process-wide token buckets keyed by
// (service, action). Acquire suspends the caller until a token is available,
// which paces outbound calls so upstreams never answer 429.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines a single token bucket.
type Config struct {
	Capacity   int     `yaml:"capacity"`
	RefillRate float64 `yaml:"refill_rate"`
}

func (c Config) valid() bool {
	return c.Capacity > 0 && c.RefillRate > 0
}

// DefaultBuckets are the built-in bucket definitions. Keys are
// "<service>:<action>"; "*" matches any action of the service.
func DefaultBuckets() map[string]Config {
	return map[string]Config{
		"tmdb:*":           {Capacity: 4, RefillRate: 4},
		"imagehost:upload": {Capacity: 1, RefillRate: 1},
		"tracker:upload":   {Capacity: 1, RefillRate: 1},
		"tracker:search":   {Capacity: 2, RefillRate: 2},
	}
}

// Registry holds the process-wide buckets. Buckets are created lazily from
// configuration on first acquire; unknown keys pass through unlimited.
type Registry struct {
	mu       sync.Mutex
	configs  map[string]Config
	limiters map[string]*rate.Limiter
}

// NewRegistry creates a Registry with the given bucket definitions layered
// over DefaultBuckets.
func NewRegistry(overrides map[string]Config) *Registry {
	configs := DefaultBuckets()
	for k, c := range overrides {
		configs[k] = c
	}
	return &Registry{
		configs:  configs,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Key composes the bucket key for a service / action pair.
func Key(service, action string) string {
	return fmt.Sprintf("%s:%s", service, action)
}

// SetBucket installs or replaces the bucket definition for key. Used for
// per-tracker schema overrides. An invalid config removes the bucket.
func (r *Registry) SetBucket(key string, config Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.limiters, key)
	if !config.valid() {
		delete(r.configs, key)
		return
	}
	r.configs[key] = config
}

// Acquire blocks until a token is available in the bucket for
// (service, action), or ctx is cancelled. Services with no matching bucket
// are not limited.
func (r *Registry) Acquire(ctx context.Context, service, action string) error {
	return r.AcquireN(ctx, service, action, 1)
}

// AcquireN acquires n tokens.
func (r *Registry) AcquireN(ctx context.Context, service, action string, n int) error {
	l := r.limiter(service, action)
	if l == nil {
		return nil
	}
	if err := l.WaitN(ctx, n); err != nil {
		return fmt.Errorf("acquire %s: %s", Key(service, action), err)
	}
	return nil
}

func (r *Registry) limiter(service, action string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range []string{Key(service, action), Key(service, "*")} {
		if l, ok := r.limiters[key]; ok {
			return l
		}
		if c, ok := r.configs[key]; ok {
			l := rate.NewLimiter(rate.Limit(c.RefillRate), c.Capacity)
			r.limiters[key] = l
			return l
		}
	}
	return nil
}
