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
	"sort"
	"strings"

	"github.com/seedarr/seedarr/core"
)

// DuplicateQuery identifies a release for duplicate checking.
type DuplicateQuery struct {
	TmdbID      int
	ImdbID      string
	ReleaseName string
}

// matchRank orders duplicate evidence: tmdb id beats imdb id beats
// normalized name.
func matchRank(q DuplicateQuery, r SearchResult) int {
	switch {
	case q.TmdbID != 0 && r.TmdbID == q.TmdbID:
		return 3
	case q.ImdbID != "" && strings.EqualFold(r.ImdbID, q.ImdbID):
		return 2
	case normalizeName(r.Title) == normalizeName(q.ReleaseName):
		return 1
	}
	return 0
}

func normalizeName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(c rune) rune {
		switch c {
		case '.', ' ', '_', '-':
			return -1
		}
		return c
	}, name)
}

// DuplicateCheck searches the tracker for the release and returns matches
// ranked tmdb > imdb > name. An empty slice means the release is not
// present.
func (a *Adapter) DuplicateCheck(
	ctx context.Context, q DuplicateQuery) ([]SearchResult, error) {

	query := q.ReleaseName
	if q.TmdbID != 0 {
		query = fmt.Sprint(q.TmdbID)
	} else if q.ImdbID != "" {
		query = q.ImdbID
	}
	results, err := a.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		result SearchResult
		rank   int
	}
	var matches []ranked
	for _, r := range results {
		if rank := matchRank(q, r); rank > 0 {
			matches = append(matches, ranked{r, rank})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].rank > matches[j].rank
	})
	out := make([]SearchResult, len(matches))
	for i, m := range matches {
		out[i] = m.result
	}
	return out, nil
}

// DuplicateQueryFromMetadata derives the strongest available identifiers
// from entry metadata.
func DuplicateQueryFromMetadata(
	release core.Release, movie *core.MovieMetadata) DuplicateQuery {

	q := DuplicateQuery{ReleaseName: release.Name()}
	if movie != nil {
		q.TmdbID = movie.TmdbID
		q.ImdbID = movie.ImdbID
	}
	return q
}
