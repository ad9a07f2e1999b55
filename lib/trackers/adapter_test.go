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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/ratelimit"
)

func adapterFixture(t *testing.T, handler http.Handler) *Adapter {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := NewAdapter(
		SchemaFixture(server.URL),
		Credentials{APIKey: "token"},
		ratelimit.NewRegistry(map[string]ratelimit.Config{
			// Unthrottled for tests.
			"tracker/demo:upload": {Capacity: 100, RefillRate: 100},
			"tracker/demo:search": {Capacity: 100, RefillRate: 100},
		}),
		nil)
	require.NoError(t, err)
	return a
}

func TestAdapterUpload(t *testing.T) {
	require := require.New(t)

	adapter := adapterFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/api/torrents/upload", r.URL.Path)
		require.Equal("POST", r.Method)
		require.Equal("Bearer token", r.Header.Get("Authorization"))
		require.NoError(r.ParseMultipartForm(1 << 20))

		// The contract-bearing bit: repeated form keys, not a JSON array.
		require.Equal([]string{"10", "15", "20"}, r.MultipartForm.Value["tag_ids"])
		require.Equal([]string{"550"}, r.MultipartForm.Value["tmdb"])
		_, header, err := r.FormFile("torrent")
		require.NoError(err)
		require.NotZero(header.Size)

		fmt.Fprint(w, `{"success": true, "data": {"id": 4242}}`)
	}))

	result, err := adapter.Upload(context.Background(), buildContextFixture(t))
	require.NoError(err)
	require.Equal("4242", result.TorrentID)
	require.Equal(adapter.schema.Tracker.BaseURL+"/torrents/4242", result.URL)
}

func TestAdapterUploadRejected(t *testing.T) {
	require := require.New(t)

	adapter := adapterFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "message": "torrent already exists"}`)
	}))

	_, err := adapter.Upload(context.Background(), buildContextFixture(t))
	require.Error(err)
	require.Equal(core.ErrKindTrackerPermanent, core.KindOf(err))
	require.Contains(err.Error(), "torrent already exists")
}

func TestAdapterUploadValidationStopsBeforeNetwork(t *testing.T) {
	require := require.New(t)

	var hits int
	adapter := adapterFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))

	ctx := buildContextFixture(t)
	delete(ctx, "name")
	_, err := adapter.Upload(context.Background(), ctx)
	require.Error(err)
	require.Equal(core.ErrKindValidation, core.KindOf(err))
	require.Equal(0, hits)
}

func TestAdapterSearch(t *testing.T) {
	require := require.New(t)

	adapter := adapterFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/api/torrents/filter", r.URL.Path)
		require.Equal("The.Movie", r.URL.Query().Get("name"))
		fmt.Fprint(w, `{"data": [
			{"attributes": {
				"name": "The.Movie.2021.1080p.WEB-DL.H264-X",
				"tmdb_id": 550,
				"size": 123456789,
				"seeders": 12,
				"leechers": 3,
				"download_link": "https://demo.example/download/1"
			}}
		]}`)
	}))

	results, err := adapter.Search(context.Background(), "The.Movie")
	require.NoError(err)
	require.Len(results, 1)
	require.Equal("The.Movie.2021.1080p.WEB-DL.H264-X", results[0].Title)
	require.Equal(550, results[0].TmdbID)
	require.Equal(int64(123456789), results[0].Size)
	require.Equal(12, results[0].Seeders)
}

func TestAdapterDuplicateCheckRanking(t *testing.T) {
	require := require.New(t)

	adapter := adapterFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Query composed from the tmdb id, the strongest identifier.
		require.Equal("550", r.URL.Query().Get("name"))
		fmt.Fprint(w, `{"data": [
			{"attributes": {"name": "The.Movie.2021.1080p.WEB-DL.H264-X", "tmdb_id": 0}},
			{"attributes": {"name": "Unrelated.Movie.2020", "tmdb_id": 0}},
			{"attributes": {"name": "The.Movie.2021.2160p.WEB-DL.HEVC-Y", "tmdb_id": 550}}
		]}`)
	}))

	matches, err := adapter.DuplicateCheck(context.Background(), DuplicateQuery{
		TmdbID:      550,
		ReleaseName: "The.Movie.2021.1080p.WEB-DL.H264-X",
	})
	require.NoError(err)
	require.Len(matches, 2)
	// tmdb match outranks the name match.
	require.Equal(550, matches[0].TmdbID)
	require.Equal("The.Movie.2021.1080p.WEB-DL.H264-X", matches[1].Title)
}

func TestAdapterDuplicateCheckNoMatches(t *testing.T) {
	require := require.New(t)

	adapter := adapterFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": []}`)
	}))

	matches, err := adapter.DuplicateCheck(context.Background(), DuplicateQuery{
		TmdbID: 550, ReleaseName: "X",
	})
	require.NoError(err)
	require.Empty(matches)
}

func TestAdapterTestUploadStopsBeforeTransmission(t *testing.T) {
	require := require.New(t)

	var hits int
	adapter := adapterFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))

	result := adapter.TestUpload(context.Background(), buildContextFixture(t))
	require.True(result.OK)
	require.Equal(0, hits)
}

func TestParseTorznab(t *testing.T) {
	require := require.New(t)

	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <item>
      <title>The.Movie.2021.1080p.WEB-DL.H264-X</title>
      <link>https://demo.example/download/1</link>
      <size>123456789</size>
      <torznab:attr name="seeders" value="12"/>
      <torznab:attr name="peers" value="3"/>
      <torznab:attr name="tmdbid" value="550"/>
      <torznab:attr name="imdbid" value="tt0137523"/>
    </item>
  </channel>
</rss>`
	results, err := parseTorznab([]byte(feed))
	require.NoError(err)
	require.Len(results, 1)
	require.Equal("The.Movie.2021.1080p.WEB-DL.H264-X", results[0].Title)
	require.Equal(12, results[0].Seeders)
	require.Equal(3, results[0].Leechers)
	require.Equal(550, results[0].TmdbID)
	require.Equal("tt0137523", results[0].ImdbID)
	require.Equal(int64(123456789), results[0].Size)
}

func TestStorePersistsConfigs(t *testing.T) {
	require := require.New(t)

	store, cleanup := StoreFixtureDB()
	defer cleanup()

	doc := SchemaFixtureDoc("https://demo.example")
	schema, err := store.Upsert(doc, Credentials{APIKey: "k", Passkey: "p"}, true)
	require.NoError(err)
	require.Equal("demo", schema.Tracker.Slug)

	c, err := store.Get("demo")
	require.NoError(err)
	require.True(c.Enabled)
	require.Equal("k", c.APIKey)

	// Upsert replaces in place.
	_, err = store.Upsert(doc, Credentials{APIKey: "k2"}, false)
	require.NoError(err)
	c, err = store.Get("demo")
	require.NoError(err)
	require.False(c.Enabled)
	require.Equal("k2", c.APIKey)

	require.NoError(store.SetEnabled("demo", true))
	enabled, err := store.ListEnabled()
	require.NoError(err)
	require.Len(enabled, 1)

	adapters, err := store.BuildAdapters(ratelimit.NewRegistry(nil), nil)
	require.NoError(err)
	require.Len(adapters, 1)
	require.Equal("demo", adapters[0].Slug())
}

func TestStoreRejectsInvalidSchema(t *testing.T) {
	require := require.New(t)

	store, cleanup := StoreFixtureDB()
	defer cleanup()

	_, err := store.Upsert([]byte("tracker: {}"), Credentials{}, true)
	require.Error(err)
}

func TestStoreGetNotFound(t *testing.T) {
	require := require.New(t)

	store, cleanup := StoreFixtureDB()
	defer cleanup()

	_, err := store.Get("missing")
	require.Equal(ErrTrackerNotFound, err)
}
