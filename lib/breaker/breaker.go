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

// Package breaker provides named circuit breakers for flaky dependencies,
// the Cloudflare bypass service in particular. A breaker trips after a run
// of failures, fails fast while open, and admits a single probe once the
// open duration elapses.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/utils/log"
)

// State mirrors the breaker state machine.
type State string

// Breaker states.
const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config defines breaker behavior for one dependency.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Window           time.Duration `yaml:"window"`
	OpenDuration     time.Duration `yaml:"open_duration"`
}

func (c Config) applyDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
	if c.OpenDuration == 0 {
		c.OpenDuration = time.Minute
	}
	return c
}

// Breaker guards calls to a single named dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a new Breaker.
func New(name string, config Config) *Breaker {
	config = config.applyDefaults()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    config.Window,
		Timeout:     config.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= uint32(config.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.With("breaker", name).Infof("Circuit breaker %s -> %s", from, to)
		},
	})
	return &Breaker{cb}
}

// Call invokes f through the breaker. While the breaker is open, f is not
// invoked and a circuit-open error is returned immediately.
func (b *Breaker) Call(f func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, f()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.NewError(core.ErrKindCircuitOpen, err)
	}
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	}
	return StateClosed
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// Registry holds the process-wide breakers keyed by dependency name.
type Registry struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry whose breakers share config.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it if absent.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.config)
		r.breakers[name] = b
	}
	return b
}

// States returns a snapshot of all breaker states for status reporting.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}
