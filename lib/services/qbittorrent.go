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
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/seedarr/seedarr/utils/httputil"
)

// QBittorrentConfig defines QBittorrentClient configuration.
type QBittorrentConfig struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Category string        `yaml:"category"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c QBittorrentConfig) applyDefaults() QBittorrentConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// QBittorrentClient injects generated torrents into a qBittorrent instance
// for seeding, via its WebUI API.
type QBittorrentClient struct {
	config QBittorrentConfig

	mu     sync.Mutex
	cookie string
}

// NewQBittorrentClient creates a new QBittorrentClient.
func NewQBittorrentClient(config QBittorrentConfig) *QBittorrentClient {
	return &QBittorrentClient{config: config.applyDefaults()}
}

// login authenticates and caches the SID cookie.
func (c *QBittorrentClient) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cookie != "" {
		return c.cookie, nil
	}
	form := url.Values{}
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)
	resp, err := httputil.Post(
		fmt.Sprintf("%s/api/v2/auth/login", c.config.URL),
		httputil.SendContext(ctx),
		httputil.SendBody(strings.NewReader(form.Encode())),
		httputil.SendHeaders(map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		}),
		httputil.SendTimeout(c.config.Timeout))
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "SID" {
			c.cookie = fmt.Sprintf("SID=%s", cookie.Value)
			return c.cookie, nil
		}
	}
	return "", fmt.Errorf("login: no SID cookie in response")
}

func (c *QBittorrentClient) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookie = ""
}

// AddTorrent adds torrent bytes to the client under category (falling back
// to the configured default category).
func (c *QBittorrentClient) AddTorrent(
	ctx context.Context, torrent []byte, category string) error {

	cookie, err := c.login(ctx)
	if err != nil {
		return err
	}
	if category == "" {
		category = c.config.Category
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("torrents", "release.torrent")
	if err != nil {
		return err
	}
	if _, err := part.Write(torrent); err != nil {
		return err
	}
	if category != "" {
		if err := w.WriteField("category", category); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	_, err = httputil.Post(
		fmt.Sprintf("%s/api/v2/torrents/add", c.config.URL),
		httputil.SendContext(ctx),
		httputil.SendBody(bytes.NewReader(body.Bytes())),
		httputil.SendHeaders(map[string]string{
			"Content-Type": w.FormDataContentType(),
			"Cookie":       cookie,
		}),
		httputil.SendTimeout(c.config.Timeout),
		httputil.SendRetry())
	if httputil.IsForbidden(err) || httputil.IsUnauthorized(err) {
		// Session expired; retry once with a fresh login.
		c.resetSession()
		cookie, err = c.login(ctx)
		if err != nil {
			return err
		}
		_, err = httputil.Post(
			fmt.Sprintf("%s/api/v2/torrents/add", c.config.URL),
			httputil.SendContext(ctx),
			httputil.SendBody(bytes.NewReader(body.Bytes())),
			httputil.SendHeaders(map[string]string{
				"Content-Type": w.FormDataContentType(),
				"Cookie":       cookie,
			}),
			httputil.SendTimeout(c.config.Timeout))
	}
	return err
}

// Status reports whether the client is reachable.
func (c *QBittorrentClient) Status(ctx context.Context) (TorrentClientStatus, error) {
	cookie, err := c.login(ctx)
	if err != nil {
		return TorrentClientStatus{}, err
	}
	resp, err := httputil.Get(
		fmt.Sprintf("%s/api/v2/app/version", c.config.URL),
		httputil.SendContext(ctx),
		httputil.SendHeaders(map[string]string{"Cookie": cookie}),
		httputil.SendTimeout(c.config.Timeout))
	if err != nil {
		return TorrentClientStatus{}, err
	}
	defer resp.Body.Close()

	version, err := io.ReadAll(resp.Body)
	if err != nil {
		return TorrentClientStatus{}, err
	}
	return TorrentClientStatus{Connected: true, Version: string(version)}, nil
}
