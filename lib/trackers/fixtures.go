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
	"fmt"
	"strings"

	"github.com/seedarr/seedarr/localdb"
	"github.com/seedarr/seedarr/utils/testutil"
)

const schemaFixtureTemplate = `
tracker:
  name: Demo Tracker
  slug: demo
  base_url: %s
auth:
  type: bearer
endpoints:
  upload:
    method: POST
    path: /api/torrents/upload
  search:
    method: GET
    path: /api/torrents/filter?name={query}
upload:
  fields:
    - name: torrent
      type: file
      source: torrent
      required: true
    - name: name
      type: string
      source: name
      required: true
    - name: description
      type: string
      source: description
    - name: tmdb
      type: number
      source: movie.tmdb_id
    - name: category_id
      type: number
      source: category
    - name: tag_ids
      type: repeated
      source: options.tags
    - name: anonymous
      type: boolean
      source: anonymous
      default: false
    - name: mediainfo
      type: json
      source: media_info
options:
  quality:
    type: 3
    name_mappings:
      1080p: 3
      2160p: 1
    resolution_fallback:
      1080p: 3
      720p: 5
  language:
    type: 6
    auto_multi: true
    auto_multi_value: 12
    tmdb_mappings:
      en: 2
      fr: 5
  genre:
    type: 9
    multi_select: true
    tmdb_mappings:
      Drama: 14
      Action: 11
categories:
  movie_1080p: 19
  movie_2160p: 20
search:
  default_query: test
  format: json
  results_path: data
  fields:
    title: attributes.name
    tmdb_id: attributes.tmdb_id
    imdb_id: attributes.imdb_id
    size: attributes.size
    seeders: attributes.seeders
    leechers: attributes.leechers
    url: attributes.download_link
response:
  upload:
    success_field: success
    error_field: message
    torrent_id_field: data.id
    torrent_url_template: "{base_url}/torrents/{torrent_id}"
validation:
  name:
    required: true
    min_length: 3
sanitize:
  - action: replace_spaces
  - action: collapse_dots
  - action: trim
skip_on_duplicate: true
`

// SchemaFixtureDoc returns a demo schema document pointed at baseURL.
func SchemaFixtureDoc(baseURL string) []byte {
	return []byte(fmt.Sprintf(strings.TrimLeft(schemaFixtureTemplate, "\n"), baseURL))
}

// SchemaFixture returns a parsed demo schema pointed at baseURL.
func SchemaFixture(baseURL string) *Schema {
	s, err := ParseSchema(SchemaFixtureDoc(baseURL))
	if err != nil {
		panic(err)
	}
	return s
}

// StoreFixtureDB returns a tracker config Store backed by a temporary
// database.
func StoreFixtureDB() (*Store, func()) {
	var cleanup testutil.Cleanup
	defer cleanup.Recover()

	db, c := localdb.Fixture()
	cleanup.Add(c)

	return NewStore(db), cleanup.Run
}
