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
	"mime/multipart"
	"time"

	"github.com/seedarr/seedarr/lib/ratelimit"
	"github.com/seedarr/seedarr/utils/httputil"
)

// ImageHostConfig defines ImageHostClient configuration.
type ImageHostConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c ImageHostConfig) applyDefaults() ImageHostConfig {
	if c.Timeout == 0 {
		c.Timeout = time.Minute
	}
	return c
}

// ImageHostClient uploads screenshots to an imgbb-style host and returns
// the public url.
type ImageHostClient struct {
	config ImageHostConfig
	limits *ratelimit.Registry
}

// NewImageHostClient creates a new ImageHostClient.
func NewImageHostClient(config ImageHostConfig, limits *ratelimit.Registry) *ImageHostClient {
	return &ImageHostClient{config.applyDefaults(), limits}
}

// Upload posts image bytes and returns the hosted url.
func (c *ImageHostClient) Upload(ctx context.Context, image []byte) (string, error) {
	if err := c.limits.Acquire(ctx, "imagehost", "upload"); err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if c.config.APIKey != "" {
		if err := w.WriteField("key", c.config.APIKey); err != nil {
			return "", err
		}
	}
	part, err := w.CreateFormFile("image", "screenshot.png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	resp, err := httputil.Post(
		c.config.URL,
		httputil.SendContext(ctx),
		httputil.SendBody(bytes.NewReader(body.Bytes())),
		httputil.SendHeaders(map[string]string{"Content-Type": w.FormDataContentType()}),
		httputil.SendTimeout(c.config.Timeout),
		httputil.SendRetry())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %s", err)
	}
	if result.Data.URL == "" {
		return "", fmt.Errorf("no url in image host response")
	}
	return result.Data.URL, nil
}
