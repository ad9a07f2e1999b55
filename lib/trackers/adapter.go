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
package trackers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/ratelimit"
	"github.com/seedarr/seedarr/lib/services"
	"github.com/seedarr/seedarr/utils/httputil"
)

// Credentials are the runtime-mutable secrets for one tracker.
type Credentials struct {
	APIKey  string `yaml:"api_key"`
	Passkey string `yaml:"passkey"`
	Cookie  string `yaml:"cookie"`
}

// Session is an authenticated tracker session handle.
type Session struct {
	Cookies   map[string]string
	UserAgent string
}

// UploadResult is the remote identity of an uploaded torrent.
type UploadResult struct {
	TorrentID string
	URL       string
}

// TestResult is the outcome of a dry-run hook.
type TestResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

const (
	searchTimeout = 30 * time.Second
	uploadTimeout = 10 * time.Minute
)

// Adapter executes tracker operations from a declarative schema. It
// contains no tracker-specific branches.
type Adapter struct {
	schema     *Schema
	creds      Credentials
	limits     *ratelimit.Registry
	cloudflare services.CloudflareBypass

	mu      sync.Mutex
	session *Session
}

// NewAdapter creates an Adapter for schema. cloudflare may be nil when the
// schema does not require challenge solving.
func NewAdapter(
	schema *Schema,
	creds Credentials,
	limits *ratelimit.Registry,
	cloudflare services.CloudflareBypass) (*Adapter, error) {

	if schema.Cloudflare.Enabled && cloudflare == nil {
		return nil, fmt.Errorf(
			"tracker %s requires cloudflare bypass but none is configured",
			schema.Tracker.Slug)
	}

	// Per-action buckets: schema overrides win, defaults otherwise.
	service := "tracker/" + schema.Tracker.Slug
	defaults := map[string]ratelimit.Config{
		"upload": {Capacity: 1, RefillRate: 1},
		"search": {Capacity: 2, RefillRate: 2},
	}
	for action, config := range defaults {
		if override, ok := schema.RateLimiting[action]; ok {
			config = override
		}
		limits.SetBucket(ratelimit.Key(service, action), config)
	}

	return &Adapter{
		schema:     schema,
		creds:      creds,
		limits:     limits,
		cloudflare: cloudflare,
	}, nil
}

// Slug returns the tracker slug the adapter serves.
func (a *Adapter) Slug() string {
	return a.schema.Tracker.Slug
}

// Schema returns the adapter's schema.
func (a *Adapter) Schema() *Schema {
	return a.schema
}

// AnnounceURL returns the announce url for generated torrents.
func (a *Adapter) AnnounceURL() string {
	return a.schema.AnnounceURL(a.creds.Passkey)
}

// SkipOnDuplicate returns the tracker's duplicate policy.
func (a *Adapter) SkipOnDuplicate() bool {
	return a.schema.SkipOnDuplicate
}

// Authenticate prepares a session: solves the Cloudflare challenge when
// configured and verifies credentials against the authenticate endpoint if
// one is declared. The session is cached for subsequent calls.
func (a *Adapter) Authenticate(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	if a.session != nil {
		s := a.session
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	session := &Session{Cookies: map[string]string{}}
	if a.schema.Cloudflare.Enabled {
		cf, err := a.cloudflare.GetSession(ctx, a.schema.Tracker.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("cloudflare session: %w", err)
		}
		session.Cookies = cf.Cookies
		session.UserAgent = cf.UserAgent
	}

	if _, ok := a.schema.Endpoints["authenticate"]; ok {
		method, u, err := a.schema.EndpointURL("authenticate", a.creds.Passkey)
		if err != nil {
			return nil, err
		}
		resp, err := httputil.Send(
			method,
			u,
			httputil.SendContext(ctx),
			httputil.SendHeaders(a.headers(session)),
			httputil.SendTimeout(searchTimeout),
			httputil.SendRetry())
		if err != nil {
			if httputil.IsUnauthorized(err) || httputil.IsForbidden(err) {
				return nil, core.NewError(core.ErrKindAuthRejected, err)
			}
			return nil, err
		}
		resp.Body.Close()
	}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	return session, nil
}

// headers composes auth and session headers for a request.
func (a *Adapter) headers(session *Session) map[string]string {
	h := map[string]string{}
	switch a.schema.Auth.Type {
	case "bearer":
		header := a.schema.Auth.Header
		if header == "" {
			header = "Authorization"
		}
		prefix := a.schema.Auth.Prefix
		if prefix == "" {
			prefix = "Bearer "
		}
		h[header] = prefix + a.creds.APIKey
	case "api_key":
		header := a.schema.Auth.Header
		if header == "" {
			header = "X-Api-Key"
		}
		h[header] = a.creds.APIKey
	}

	var cookies []string
	if a.schema.Auth.Type == "cookie" && a.creds.Cookie != "" {
		cookies = append(cookies, a.creds.Cookie)
	}
	if session != nil {
		for name, value := range session.Cookies {
			cookies = append(cookies, fmt.Sprintf("%s=%s", name, value))
		}
		if session.UserAgent != "" {
			h["User-Agent"] = session.UserAgent
		}
	}
	if len(cookies) > 0 {
		h["Cookie"] = strings.Join(cookies, "; ")
	}
	return h
}

// expandTemplate substitutes {token} placeholders in a url template.
func expandTemplate(template string, vars map[string]string) string {
	for k, v := range vars {
		template = strings.ReplaceAll(template, "{"+k+"}", v)
	}
	return template
}

// Search issues the configured search endpoint and parses results per the
// schema's format.
func (a *Adapter) Search(ctx context.Context, query string) ([]SearchResult, error) {
	session, err := a.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.limits.Acquire(ctx, "tracker/"+a.Slug(), "search"); err != nil {
		return nil, err
	}
	method, u, err := a.schema.EndpointURL("search", a.creds.Passkey)
	if err != nil {
		return nil, err
	}
	u = expandTemplate(u, map[string]string{"query": url.QueryEscape(query)})

	resp, err := httputil.Send(
		method,
		u,
		httputil.SendContext(ctx),
		httputil.SendHeaders(a.headers(session)),
		httputil.SendTimeout(searchTimeout),
		httputil.SendRetry())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if a.schema.Search.Format == "torznab" {
		return parseTorznab(data)
	}
	return parseJSONSearch(data, a.schema.Search)
}

// BuildOptions resolves the schema's option facets for the release.
func (a *Adapter) BuildOptions(in OptionInput) map[string]interface{} {
	return BuildOptions(a.schema.Options, in)
}

// Category resolves the semantic category key (e.g. "movie_1080p") to the
// tracker's category id.
func (a *Adapter) Category(key string) (interface{}, bool) {
	v, ok := a.schema.Categories[key]
	return v, ok
}

// SanitizeName runs the schema's name sanitization pipeline.
func (a *Adapter) SanitizeName(name string) (string, error) {
	return SanitizeName(name, a.schema.Sanitize)
}

// Upload validates the payload, renders the multipart body from the
// schema's field descriptors and posts it. Validation failures are terminal
// and happen before any network call.
func (a *Adapter) Upload(ctx context.Context, bctx BuildContext) (UploadResult, error) {
	if err := ValidatePayload(a.schema.Upload.Fields, a.schema.Validation, bctx); err != nil {
		return UploadResult{}, err
	}
	body, contentType, err := BuildUploadBody(a.schema.Upload.Fields, bctx)
	if err != nil {
		return UploadResult{}, err
	}

	session, err := a.Authenticate(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	if err := a.limits.Acquire(ctx, "tracker/"+a.Slug(), "upload"); err != nil {
		return UploadResult{}, err
	}
	method, u, err := a.schema.EndpointURL("upload", a.creds.Passkey)
	if err != nil {
		return UploadResult{}, err
	}
	if method == "GET" {
		method = "POST"
	}

	headers := a.headers(session)
	headers["Content-Type"] = contentType
	resp, err := httputil.Send(
		method,
		u,
		httputil.SendContext(ctx),
		httputil.SendHeaders(headers),
		httputil.SendBody(bytes.NewReader(body)),
		httputil.SendTimeout(uploadTimeout),
		httputil.SendRetry())
	if err != nil {
		return UploadResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadResult{}, err
	}
	return a.parseUploadResponse(data)
}

func (a *Adapter) parseUploadResponse(data []byte) (UploadResult, error) {
	spec := a.schema.Response.Upload
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return UploadResult{}, core.Errorf(
			core.ErrKindTrackerPermanent, "unparseable upload response: %.200s", data)
	}
	ctx := BuildContext(tree)

	if spec.SuccessField != "" {
		v, ok := ctx.Resolve(spec.SuccessField)
		if !ok || !truthy(v) {
			message := "upload rejected"
			if spec.ErrorField != "" {
				if m, ok := ctx.Resolve(spec.ErrorField); ok && m != nil {
					message = stringify(m)
				}
			}
			return UploadResult{}, core.Errorf(core.ErrKindTrackerPermanent, "%s", message)
		}
	}

	var result UploadResult
	if spec.TorrentIDField != "" {
		if v, ok := ctx.Resolve(spec.TorrentIDField); ok {
			result.TorrentID = stringify(v)
		}
	}
	if spec.TorrentURLTemplate != "" && result.TorrentID != "" {
		result.URL = expandTemplate(spec.TorrentURLTemplate, map[string]string{
			"torrent_id": result.TorrentID,
			"base_url":   strings.TrimRight(a.schema.Tracker.BaseURL, "/"),
		})
	}
	return result, nil
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "1" || x == "success" || x == "ok"
	case float64:
		return x != 0
	}
	return v != nil
}

// TestAuth is a dry-run of Authenticate.
func (a *Adapter) TestAuth(ctx context.Context) TestResult {
	if _, err := a.Authenticate(ctx); err != nil {
		return TestResult{Message: err.Error()}
	}
	return TestResult{OK: true, Message: "authenticated"}
}

// TestSearch is a dry-run of Search using the schema's default query.
func (a *Adapter) TestSearch(ctx context.Context) TestResult {
	results, err := a.Search(ctx, a.schema.Search.DefaultQuery)
	if err != nil {
		return TestResult{Message: err.Error()}
	}
	return TestResult{OK: true, Message: fmt.Sprintf("%d results", len(results))}
}

// TestUpload validates and renders the upload body, stopping before
// transmission.
func (a *Adapter) TestUpload(ctx context.Context, bctx BuildContext) TestResult {
	if err := ValidatePayload(a.schema.Upload.Fields, a.schema.Validation, bctx); err != nil {
		return TestResult{Message: err.Error()}
	}
	body, contentType, err := BuildUploadBody(a.schema.Upload.Fields, bctx)
	if err != nil {
		return TestResult{Message: err.Error()}
	}
	return TestResult{
		OK:      true,
		Message: fmt.Sprintf("rendered %d byte %s body", len(body), contentType),
	}
}
