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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/breaker"
	"github.com/seedarr/seedarr/lib/ratelimit"
)

func TestFlareSolverrGetSession(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/v1", r.URL.Path)
		fmt.Fprint(w, `{
			"status": "ok",
			"solution": {
				"userAgent": "Mozilla/5.0",
				"cookies": [{"name": "cf_clearance", "value": "token"}]
			}
		}`)
	}))
	defer server.Close()

	client := NewFlareSolverrClient(
		FlareSolverrConfig{URL: server.URL}, breaker.NewRegistry(breaker.Config{}))

	session, err := client.GetSession(context.Background(), "https://tracker.example")
	require.NoError(err)
	require.Equal("Mozilla/5.0", session.UserAgent)
	require.Equal("token", session.Cookies["cf_clearance"])
}

func TestFlareSolverrCircuitOpensOnOutage(t *testing.T) {
	require := require.New(t)

	client := NewFlareSolverrClient(
		// Nothing listens on this port; connections are refused.
		FlareSolverrConfig{URL: "http://127.0.0.1:1", Timeout: time.Second},
		breaker.NewRegistry(breaker.Config{FailureThreshold: 3}))

	for i := 0; i < 3; i++ {
		_, err := client.GetSession(context.Background(), "https://tracker.example")
		require.Error(err)
		require.NotEqual(core.ErrKindCircuitOpen, core.KindOf(err))
	}

	// Breaker is now open; this fails fast without the network.
	_, err := client.GetSession(context.Background(), "https://tracker.example")
	require.Equal(core.ErrKindCircuitOpen, core.KindOf(err))
}

func TestFlareSolverrErrorStatus(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "error", "message": "challenge failed"}`)
	}))
	defer server.Close()

	client := NewFlareSolverrClient(
		FlareSolverrConfig{URL: server.URL}, breaker.NewRegistry(breaker.Config{}))

	_, err := client.GetSession(context.Background(), "https://tracker.example")
	require.Equal(core.ErrKindExternalUnavailable, core.KindOf(err))
}

func TestQBittorrentAddTorrent(t *testing.T) {
	require := require.New(t)

	var added bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			require.NoError(r.ParseForm())
			require.Equal("admin", r.FormValue("username"))
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session"})
			fmt.Fprint(w, "Ok.")
		case "/api/v2/torrents/add":
			require.Equal("SID=session", r.Header.Get("Cookie"))
			require.NoError(r.ParseMultipartForm(1 << 20))
			require.Equal("movies", r.FormValue("category"))
			_, header, err := r.FormFile("torrents")
			require.NoError(err)
			require.NotZero(header.Size)
			added = true
			fmt.Fprint(w, "Ok.")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewQBittorrentClient(QBittorrentConfig{
		URL:      server.URL,
		Username: "admin",
		Password: "secret",
		Category: "movies",
	})
	require.NoError(client.AddTorrent(context.Background(), []byte("d4:infoe"), ""))
	require.True(added)
}

func TestQBittorrentStatus(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session"})
		case "/api/v2/app/version":
			fmt.Fprint(w, "v4.6.0")
		}
	}))
	defer server.Close()

	client := NewQBittorrentClient(QBittorrentConfig{URL: server.URL})
	status, err := client.Status(context.Background())
	require.NoError(err)
	require.True(status.Connected)
	require.Equal("v4.6.0", status.Version)
}

func TestImageHostUpload(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(r.ParseMultipartForm(1 << 20))
		require.Equal("key123", r.FormValue("key"))
		_, _, err := r.FormFile("image")
		require.NoError(err)
		fmt.Fprint(w, `{"data": {"url": "https://img.example/abc.png"}}`)
	}))
	defer server.Close()

	client := NewImageHostClient(
		ImageHostConfig{URL: server.URL, APIKey: "key123"}, ratelimit.NewRegistry(nil))

	url, err := client.Upload(context.Background(), []byte("png-bytes"))
	require.NoError(err)
	require.Equal("https://img.example/abc.png", url)
}

func TestProwlarrMatch(t *testing.T) {
	indexers := []ProwlarrIndexer{
		{ID: 1, Name: "Demo", DefinitionName: "demotracker",
			IndexerUrls: []string{"https://demo.example/"}},
		{ID: 2, Name: "Other", DefinitionName: "other",
			IndexerUrls: []string{"https://other.example/"}},
	}
	tests := []struct {
		desc  string
		hints ProwlarrHints
		want  int
		ok    bool
	}{
		{"by definition name", ProwlarrHints{DefinitionNames: []string{"DemoTracker"}}, 1, true},
		{"by url pattern", ProwlarrHints{URLPatterns: []string{"other.example"}}, 2, true},
		{"no match", ProwlarrHints{DefinitionNames: []string{"missing"}}, 0, false},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			require := require.New(t)

			idx, ok := Match(indexers, test.hints)
			require.Equal(test.ok, ok)
			if ok {
				require.Equal(test.want, idx.ID)
			}
		})
	}
}

func TestProwlarrIndexers(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/api/v1/indexer", r.URL.Path)
		require.Equal("apikey", r.Header.Get("X-Api-Key"))
		fmt.Fprint(w, `[{"id": 1, "name": "Demo", "definitionName": "demo", "enable": true}]`)
	}))
	defer server.Close()

	client := NewProwlarrClient(ProwlarrConfig{URL: server.URL, APIKey: "apikey"})
	indexers, err := client.Indexers(context.Background())
	require.NoError(err)
	require.Len(indexers, 1)
	require.Equal("demo", indexers[0].DefinitionName)
}
