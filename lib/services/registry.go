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
	"github.com/seedarr/seedarr/lib/breaker"
	"github.com/seedarr/seedarr/lib/ratelimit"
)

// Registry bundles the shared reliability primitives and external clients.
// It is built once at the root and passed explicitly; there is no hidden
// process-wide state beyond it.
type Registry struct {
	Limits   *ratelimit.Registry
	Breakers *breaker.Registry

	Metadata    MetadataProvider
	MediaInfo   MediaInfoAnalyzer
	Cloudflare  CloudflareBypass
	Torrents    TorrentClient
	Images      ImageHost
	Screenshots ScreenshotTool
	Renderer    Renderer
	Prowlarr    *ProwlarrClient
}

// RegistryConfig aggregates external service configuration.
type RegistryConfig struct {
	RateLimits   map[string]ratelimit.Config `yaml:"rate_limits"`
	Breaker      breaker.Config              `yaml:"breaker"`
	Tmdb         TmdbConfig                  `yaml:"tmdb"`
	TmdbCache    TmdbCacheConfig             `yaml:"tmdb_cache"`
	FlareSolverr FlareSolverrConfig          `yaml:"flaresolverr"`
	QBittorrent  QBittorrentConfig           `yaml:"qbittorrent"`
	ImageHost    ImageHostConfig             `yaml:"image_host"`
	Prowlarr     ProwlarrConfig              `yaml:"prowlarr"`
}

// NewRegistry wires the default client implementations from config. The
// analyzer, screenshot tool and renderer are host-tool integrations supplied
// by the caller; any may be nil where optional.
func NewRegistry(
	config RegistryConfig,
	analyzer MediaInfoAnalyzer,
	screenshots ScreenshotTool,
	renderer Renderer) (*Registry, error) {

	limits := ratelimit.NewRegistry(config.RateLimits)
	breakers := breaker.NewRegistry(config.Breaker)

	var cache TmdbCache
	if config.TmdbCache.Addr != "" {
		var err error
		cache, err = NewRedisTmdbCache(config.TmdbCache)
		if err != nil {
			return nil, err
		}
	}

	r := &Registry{
		Limits:      limits,
		Breakers:    breakers,
		Metadata:    NewTmdbClient(config.Tmdb, cache, limits),
		MediaInfo:   analyzer,
		Torrents:    NewQBittorrentClient(config.QBittorrent),
		Images:      NewImageHostClient(config.ImageHost, limits),
		Screenshots: screenshots,
		Renderer:    renderer,
	}
	if config.FlareSolverr.URL != "" {
		r.Cloudflare = NewFlareSolverrClient(config.FlareSolverr, breakers)
	}
	if config.Prowlarr.URL != "" {
		r.Prowlarr = NewProwlarrClient(config.Prowlarr)
	}
	return r, nil
}
