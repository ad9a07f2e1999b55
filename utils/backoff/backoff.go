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
package backoff

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config defines Backoff configuration.
type Config struct {
	Min          time.Duration `yaml:"min"`
	Max          time.Duration `yaml:"max"`
	Factor       float64       `yaml:"factor"`
	RetryTimeout time.Duration `yaml:"retry_timeout"`

	// NoJitter disables randomization of backoff durations. Should only be
	// used in testing.
	NoJitter bool `yaml:"-"`
}

func (c Config) applyDefaults() Config {
	if c.Min == 0 {
		c.Min = 1 * time.Second
	}
	if c.Max == 0 {
		c.Max = 30 * time.Second
	}
	if c.Factor == 0 {
		c.Factor = 2
	}
	if c.RetryTimeout == 0 {
		c.RetryTimeout = 15 * time.Minute
	}
	return c
}

// Backoff provides sleep durations which exponentially increase for each
// attempt, with optional jitter.
type Backoff struct {
	config Config
}

// New creates a new Backoff.
func New(config Config) *Backoff {
	return &Backoff{config.applyDefaults()}
}

// Duration maps an attempt number into the duration the caller should wait.
// Attempts are zero-indexed.
func (b *Backoff) Duration(attempt int) time.Duration {
	d := float64(b.config.Min) * math.Pow(b.config.Factor, float64(attempt))
	if !b.config.NoJitter {
		d = rand.Float64()*(d-float64(b.config.Min)) + float64(b.config.Min)
	}
	if d > float64(b.config.Max) {
		return b.config.Max
	}
	return time.Duration(d)
}

// ErrRetryTimeout is returned from Attempts iteration when the total retry
// timeout has been exceeded.
var ErrRetryTimeout = errors.New("retry timeout exceeded")

// Attempts defines an iterator which paces each attempt via exponential
// backoff. Must always be used in the following loop:
//
//	a := b.Attempts()
//	for a.WaitForNext() {
//	    if err := f(); err == nil {
//	        return nil
//	    }
//	}
//	return a.Err()
type Attempts struct {
	backoff  *Backoff
	attempt  int
	deadline time.Time
	err      error
}

// Attempts returns a new Attempts iterator.
func (b *Backoff) Attempts() *Attempts {
	return &Attempts{
		backoff:  b,
		deadline: time.Now().Add(b.config.RetryTimeout),
	}
}

// WaitForNext sleeps until the next attempt may execute. The first attempt
// always executes immediately. Returns false if the retry timeout has been
// reached.
func (a *Attempts) WaitForNext() bool {
	if a.attempt == 0 {
		a.attempt++
		return true
	}
	d := a.backoff.Duration(a.attempt - 1)
	if time.Now().Add(d).After(a.deadline) {
		a.err = ErrRetryTimeout
		return false
	}
	time.Sleep(d)
	a.attempt++
	return true
}

// Err returns the error which terminated iteration, if any.
func (a *Attempts) Err() error {
	return a.err
}
