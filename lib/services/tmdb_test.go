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

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/lib/ratelimit"
)

const tmdbMovieResponse = `{
	"id": 550,
	"imdb_id": "tt0137523",
	"title": "Fight Club",
	"original_title": "Fight Club",
	"original_language": "en",
	"release_date": "1999-10-15",
	"overview": "An insomniac office worker...",
	"tagline": "Mischief. Mayhem. Soap.",
	"runtime": 139,
	"vote_average": 8.4,
	"vote_count": 26000,
	"poster_path": "/poster.jpg",
	"genres": [{"name": "Drama"}],
	"production_countries": [{"iso_3166_1": "US"}],
	"credits": {
		"cast": [{"name": "Edward Norton", "character": "The Narrator", "order": 0}],
		"crew": [{"name": "David Fincher", "job": "Director"}]
	}
}`

func tmdbFixture(t *testing.T, handler http.Handler) *TmdbClient {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	cache, err := NewRedisTmdbCache(TmdbCacheConfig{Addr: s.Addr()})
	require.NoError(t, err)

	return NewTmdbClient(
		TmdbConfig{BaseURL: server.URL, APIKey: "key"},
		cache,
		ratelimit.NewRegistry(nil))
}

func TestGetMovieFetchesAndCaches(t *testing.T) {
	require := require.New(t)

	var hits int
	client := tmdbFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.Equal("/movie/550", r.URL.Path)
		require.Equal("key", r.URL.Query().Get("api_key"))
		fmt.Fprint(w, tmdbMovieResponse)
	}))

	m, err := client.GetMovie(context.Background(), 550)
	require.NoError(err)
	require.Equal(550, m.TmdbID)
	require.Equal("Fight Club", m.Title)
	require.Equal(1999, m.Year)
	require.Equal("David Fincher", m.Director)
	require.Equal("US", m.Country)
	require.Equal([]string{"Drama"}, m.Genres)
	require.Equal(tmdbImageBase+"/poster.jpg", m.PosterURL)

	// Second call is served from cache.
	_, err = client.GetMovie(context.Background(), 550)
	require.NoError(err)
	require.Equal(1, hits)
}

func TestGetMovieNotFound(t *testing.T) {
	require := require.New(t)

	client := tmdbFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetMovie(context.Background(), 999999)
	require.Equal(ErrMovieNotFound, err)
}

func TestSearchMovieResolvesTopResult(t *testing.T) {
	require := require.New(t)

	client := tmdbFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/movie":
			require.Equal("Fight Club", r.URL.Query().Get("query"))
			require.Equal("1999", r.URL.Query().Get("year"))
			fmt.Fprint(w, `{"results": [{"id": 550}]}`)
		case "/movie/550":
			fmt.Fprint(w, tmdbMovieResponse)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	m, err := client.SearchMovie(context.Background(), "Fight Club", 1999)
	require.NoError(err)
	require.Equal(550, m.TmdbID)
}

func TestSearchMovieNoResults(t *testing.T) {
	require := require.New(t)

	client := tmdbFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": []}`)
	}))

	_, err := client.SearchMovie(context.Background(), "Unknown", 0)
	require.Equal(ErrMovieNotFound, err)
}
