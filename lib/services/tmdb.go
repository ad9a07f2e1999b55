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
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/ratelimit"
	"github.com/seedarr/seedarr/utils/httputil"
	"github.com/seedarr/seedarr/utils/log"
)

// ErrMovieNotFound is returned when no movie matches the query.
var ErrMovieNotFound = errors.New("movie not found")

// TmdbConfig defines TmdbClient configuration.
type TmdbConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c TmdbConfig) applyDefaults() TmdbConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.themoviedb.org/3"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// TmdbClient is a MetadataProvider over the TMDB HTTP API with
// cache-then-network semantics.
type TmdbClient struct {
	config TmdbConfig
	cache  TmdbCache
	limits *ratelimit.Registry
}

// NewTmdbClient creates a new TmdbClient. cache may be nil to disable
// caching.
func NewTmdbClient(
	config TmdbConfig, cache TmdbCache, limits *ratelimit.Registry) *TmdbClient {

	return &TmdbClient{config.applyDefaults(), cache, limits}
}

type tmdbMovie struct {
	ID               int     `json:"id"`
	ImdbID           string  `json:"imdb_id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	OriginalLanguage string  `json:"original_language"`
	ReleaseDate      string  `json:"release_date"`
	Overview         string  `json:"overview"`
	Tagline          string  `json:"tagline"`
	Runtime          int     `json:"runtime"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	ProductionCountries []struct {
		ISO string `json:"iso_3166_1"`
	} `json:"production_countries"`
	Credits struct {
		Cast []struct {
			Name      string `json:"name"`
			Character string `json:"character"`
			Order     int    `json:"order"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
}

const tmdbImageBase = "https://image.tmdb.org/t/p/original"

func (m tmdbMovie) toMetadata() core.MovieMetadata {
	meta := core.MovieMetadata{
		TmdbID:           m.ID,
		ImdbID:           m.ImdbID,
		Title:            m.Title,
		OriginalTitle:    m.OriginalTitle,
		OriginalLanguage: m.OriginalLanguage,
		Overview:         m.Overview,
		Tagline:          m.Tagline,
		RuntimeMinutes:   m.Runtime,
		VoteAverage:      m.VoteAverage,
		VoteCount:        m.VoteCount,
	}
	if len(m.ReleaseDate) >= 4 {
		meta.Year, _ = strconv.Atoi(m.ReleaseDate[:4])
	}
	for _, g := range m.Genres {
		meta.Genres = append(meta.Genres, g.Name)
	}
	if len(m.ProductionCountries) > 0 {
		meta.Country = m.ProductionCountries[0].ISO
	}
	for _, c := range m.Credits.Cast {
		meta.Cast = append(meta.Cast, core.CastMember{
			Name: c.Name, Character: c.Character, Order: c.Order,
		})
	}
	for _, c := range m.Credits.Crew {
		if c.Job == "Director" {
			meta.Director = c.Name
			break
		}
	}
	if m.PosterPath != "" {
		meta.PosterURL = tmdbImageBase + m.PosterPath
	}
	if m.BackdropPath != "" {
		meta.BackdropURL = tmdbImageBase + m.BackdropPath
	}
	return meta
}

// GetMovie returns metadata for tmdbID, serving from cache when a valid
// entry exists and upserting on fetch.
func (c *TmdbClient) GetMovie(ctx context.Context, tmdbID int) (core.MovieMetadata, error) {
	if c.cache != nil {
		m, err := c.cache.Get(tmdbID)
		if err == nil {
			return m, nil
		}
		if err != ErrCacheMiss {
			log.Warnf("Error reading tmdb cache: %s", err)
		}
	}
	m, err := c.fetchMovie(ctx, tmdbID)
	if err != nil {
		return core.MovieMetadata{}, err
	}
	if c.cache != nil {
		if err := c.cache.Set(m); err != nil {
			log.Warnf("Error writing tmdb cache: %s", err)
		}
	}
	return m, nil
}

func (c *TmdbClient) fetchMovie(ctx context.Context, tmdbID int) (core.MovieMetadata, error) {
	if err := c.limits.Acquire(ctx, "tmdb", "get_movie"); err != nil {
		return core.MovieMetadata{}, err
	}
	resp, err := httputil.Get(
		fmt.Sprintf("%s/movie/%d?api_key=%s&append_to_response=credits",
			c.config.BaseURL, tmdbID, url.QueryEscape(c.config.APIKey)),
		httputil.SendContext(ctx),
		httputil.SendTimeout(c.config.Timeout),
		httputil.SendRetry())
	if err != nil {
		if httputil.IsNotFound(err) {
			return core.MovieMetadata{}, ErrMovieNotFound
		}
		return core.MovieMetadata{}, err
	}
	defer resp.Body.Close()

	var m tmdbMovie
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return core.MovieMetadata{}, fmt.Errorf("decode movie: %s", err)
	}
	return m.toMetadata(), nil
}

// SearchMovie resolves a title / year guess to full movie metadata. The top
// search result is fetched through GetMovie so it lands in the cache.
func (c *TmdbClient) SearchMovie(
	ctx context.Context, title string, year int) (core.MovieMetadata, error) {

	if err := c.limits.Acquire(ctx, "tmdb", "search"); err != nil {
		return core.MovieMetadata{}, err
	}
	u := fmt.Sprintf("%s/search/movie?api_key=%s&query=%s",
		c.config.BaseURL, url.QueryEscape(c.config.APIKey), url.QueryEscape(title))
	if year > 0 {
		u += fmt.Sprintf("&year=%d", year)
	}
	resp, err := httputil.Get(
		u,
		httputil.SendContext(ctx),
		httputil.SendTimeout(c.config.Timeout),
		httputil.SendRetry())
	if err != nil {
		return core.MovieMetadata{}, err
	}
	defer resp.Body.Close()

	var result struct {
		Results []struct {
			ID int `json:"id"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return core.MovieMetadata{}, fmt.Errorf("decode search results: %s", err)
	}
	if len(result.Results) == 0 {
		return core.MovieMetadata{}, ErrMovieNotFound
	}
	return c.GetMovie(ctx, result.Results[0].ID)
}
