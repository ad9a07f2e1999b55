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

// Package services holds the thin clients for external collaborators. Only
// the contracts the pipeline consumes are defined here; rate limiting,
// retries and circuit breaking are applied inside each client.
package services

import (
	"context"

	"github.com/seedarr/seedarr/core"
)

// MetadataProvider enriches releases with movie metadata,
// cache-then-network.
type MetadataProvider interface {
	GetMovie(ctx context.Context, tmdbID int) (core.MovieMetadata, error)
	SearchMovie(ctx context.Context, title string, year int) (core.MovieMetadata, error)
}

// MediaInfoAnalyzer reports the technical attributes of a media file.
type MediaInfoAnalyzer interface {
	Analyze(ctx context.Context, path string) (core.MediaInfo, error)
}

// CloudflareSession is a solved Cloudflare challenge.
type CloudflareSession struct {
	Cookies   map[string]string
	UserAgent string
}

// CloudflareBypass solves Cloudflare challenges for protected trackers.
type CloudflareBypass interface {
	GetSession(ctx context.Context, url string) (CloudflareSession, error)
}

// TorrentClient seeds uploaded releases.
type TorrentClient interface {
	AddTorrent(ctx context.Context, torrent []byte, category string) error
	Status(ctx context.Context) (TorrentClientStatus, error)
}

// TorrentClientStatus is a health snapshot of the seeding client.
type TorrentClientStatus struct {
	Connected bool   `json:"connected"`
	Version   string `json:"version"`
}

// ImageHost stores screenshots and returns public urls.
type ImageHost interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// ScreenshotTool captures stills from a media file. A nil tool skips the
// screenshot step.
type ScreenshotTool interface {
	Capture(ctx context.Context, mediaPath string, count int) ([][]byte, error)
}

// RenderContext is the input to presentation rendering.
type RenderContext struct {
	Release        core.Release
	Movie          *core.MovieMetadata
	MediaInfo      *core.MediaInfo
	ScreenshotURLs []string
}

// Renderer produces the textual presentation (NFO / BBCode) of a release.
// Template internals are external; the pipeline only consumes the result.
type Renderer interface {
	RenderNFO(ctx context.Context, rc RenderContext) (string, error)
	RenderDescription(ctx context.Context, rc RenderContext) (string, error)
}
