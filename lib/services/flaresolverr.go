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
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/breaker"
	"github.com/seedarr/seedarr/utils/httputil"
)

// FlareSolverrConfig defines FlareSolverrClient configuration.
type FlareSolverrConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxTimeout time.Duration `yaml:"max_timeout"`
}

func (c FlareSolverrConfig) applyDefaults() FlareSolverrConfig {
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxTimeout == 0 {
		c.MaxTimeout = time.Minute
	}
	return c
}

// FlareSolverrClient solves Cloudflare challenges through a FlareSolverr
// instance. All calls are guarded by a circuit breaker since the headless
// browser behind it is the flakiest dependency in the system.
type FlareSolverrClient struct {
	config  FlareSolverrConfig
	breaker *breaker.Breaker
}

// NewFlareSolverrClient creates a new FlareSolverrClient.
func NewFlareSolverrClient(
	config FlareSolverrConfig, breakers *breaker.Registry) *FlareSolverrClient {

	return &FlareSolverrClient{config.applyDefaults(), breakers.Get("flaresolverr")}
}

// GetSession solves the challenge for url and returns the clearance cookies
// and user agent to replay on direct requests.
func (c *FlareSolverrClient) GetSession(
	ctx context.Context, url string) (CloudflareSession, error) {

	var session CloudflareSession
	err := c.breaker.Call(func() error {
		body, err := json.Marshal(map[string]interface{}{
			"cmd":        "request.get",
			"url":        url,
			"maxTimeout": int(c.config.MaxTimeout / time.Millisecond),
		})
		if err != nil {
			return fmt.Errorf("marshal request: %s", err)
		}
		resp, err := httputil.Post(
			fmt.Sprintf("%s/v1", c.config.URL),
			httputil.SendContext(ctx),
			httputil.SendBody(bytes.NewReader(body)),
			httputil.SendHeaders(map[string]string{"Content-Type": "application/json"}),
			httputil.SendTimeout(c.config.Timeout))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Status   string `json:"status"`
			Message  string `json:"message"`
			Solution struct {
				UserAgent string `json:"userAgent"`
				Cookies   []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"cookies"`
			} `json:"solution"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode response: %s", err)
		}
		if result.Status != "ok" {
			return core.Errorf(
				core.ErrKindExternalUnavailable, "flaresolverr: %s", result.Message)
		}
		session = CloudflareSession{
			Cookies:   make(map[string]string, len(result.Solution.Cookies)),
			UserAgent: result.Solution.UserAgent,
		}
		for _, cookie := range result.Solution.Cookies {
			session.Cookies[cookie.Name] = cookie.Value
		}
		return nil
	})
	return session, err
}
