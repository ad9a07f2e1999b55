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
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
)

// SearchResult is one release found on a tracker.
type SearchResult struct {
	Title    string `json:"title"`
	TmdbID   int    `json:"tmdb_id,omitempty"`
	ImdbID   string `json:"imdb_id,omitempty"`
	Size     int64  `json:"size"`
	Seeders  int    `json:"seeders"`
	Leechers int    `json:"leechers"`
	URL      string `json:"url"`
}

// torznabFeed mirrors the subset of a Torznab RSS feed the adapter reads.
type torznabFeed struct {
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
			Size  int64  `xml:"size"`
			Attrs []struct {
				Name  string `xml:"name,attr"`
				Value string `xml:"value,attr"`
			} `xml:"attr"`
		} `xml:"item"`
	} `xml:"channel"`
}

// parseTorznab parses a Torznab XML response.
func parseTorznab(data []byte) ([]SearchResult, error) {
	var feed torznabFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("unmarshal torznab feed: %s", err)
	}
	var results []SearchResult
	for _, item := range feed.Channel.Items {
		r := SearchResult{
			Title: item.Title,
			URL:   item.Link,
			Size:  item.Size,
		}
		for _, attr := range item.Attrs {
			switch attr.Name {
			case "seeders":
				r.Seeders, _ = strconv.Atoi(attr.Value)
			case "leechers":
				r.Leechers, _ = strconv.Atoi(attr.Value)
			case "peers":
				if r.Leechers == 0 {
					r.Leechers, _ = strconv.Atoi(attr.Value)
				}
			case "size":
				if r.Size == 0 {
					r.Size, _ = strconv.ParseInt(attr.Value, 10, 64)
				}
			case "tmdbid", "tmdb":
				r.TmdbID, _ = strconv.Atoi(attr.Value)
			case "imdbid", "imdb":
				r.ImdbID = attr.Value
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// parseJSONSearch parses a JSON search response per the schema's results
// path and field map.
func parseJSONSearch(data []byte, spec SearchSpec) ([]SearchResult, error) {
	var tree interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %s", err)
	}
	items := tree
	if spec.ResultsPath != "" {
		v, ok := BuildContext{"root": tree}.Resolve("root." + spec.ResultsPath)
		if !ok {
			return nil, fmt.Errorf("search results path %q not found", spec.ResultsPath)
		}
		items = v
	}
	list, ok := items.([]interface{})
	if !ok {
		return nil, fmt.Errorf("search results path is not a list")
	}
	var results []SearchResult
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		ctx := BuildContext(m)
		r := SearchResult{
			Title: resolveString(ctx, spec.Fields["title"]),
			URL:   resolveString(ctx, spec.Fields["url"]),
		}
		r.Size = resolveInt64(ctx, spec.Fields["size"])
		r.Seeders = int(resolveInt64(ctx, spec.Fields["seeders"]))
		r.Leechers = int(resolveInt64(ctx, spec.Fields["leechers"]))
		r.TmdbID = int(resolveInt64(ctx, spec.Fields["tmdb_id"]))
		r.ImdbID = resolveString(ctx, spec.Fields["imdb_id"])
		results = append(results, r)
	}
	return results, nil
}

func resolveString(ctx BuildContext, path string) string {
	if path == "" {
		return ""
	}
	v, ok := ctx.Resolve(path)
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

func resolveInt64(ctx BuildContext, path string) int64 {
	if path == "" {
		return 0
	}
	v, ok := ctx.Resolve(path)
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	}
	return 0
}
