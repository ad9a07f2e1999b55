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
	"strings"

	"github.com/seedarr/seedarr/core"
)

// OptionInput is the release information option mapping draws from.
type OptionInput struct {
	Release   core.Release
	Movie     *core.MovieMetadata
	MediaInfo *core.MediaInfo

	// TV only; zero for movies.
	Season         int
	Episode        int
	CompleteSeason bool
}

// BuildOptions resolves every option facet of the schema into the api
// option ids to submit. Resolution order per facet: tmdb_mappings, then
// name_mappings, then resolution_fallback (quality only), then default.
// Multi-select facets collect every match; single facets take the first.
func BuildOptions(specs map[string]OptionSpec, in OptionInput) map[string]interface{} {
	options := make(map[string]interface{}, len(specs))
	for facet, spec := range specs {
		if v, ok := resolveFacet(facet, spec, in); ok {
			options[facet] = v
		}
	}
	return options
}

func resolveFacet(facet string, spec OptionSpec, in OptionInput) (interface{}, bool) {
	switch facet {
	case "season":
		return resolveNumbered(spec, in.Season, in.CompleteSeason)
	case "episode":
		return resolveNumbered(spec, in.Episode, false)
	}

	var values []interface{}

	// The MULTI rule precedes mappings: dual french / english audio is
	// submitted as the dedicated multi-language id.
	if facet == "language" && spec.AutoMulti && spec.AutoMultiValue != nil &&
		in.MediaInfo != nil &&
		in.MediaInfo.HasAudioLanguage("fr") && in.MediaInfo.HasAudioLanguage("en") {
		values = append(values, spec.AutoMultiValue)
	}

	if len(values) == 0 {
		values = lookupAll(spec.TmdbMappings, tmdbKeys(facet, in))
	}
	if len(values) == 0 {
		values = lookupAll(spec.NameMappings, nameKeys(facet, in))
	}
	if len(values) == 0 && spec.ResolutionFallback != nil && in.MediaInfo != nil {
		values = lookupAll(spec.ResolutionFallback, []string{in.MediaInfo.Resolution()})
	}
	if len(values) == 0 && spec.Default != nil {
		values = append(values, spec.Default)
	}
	if len(values) == 0 {
		return nil, false
	}
	if spec.MultiSelect {
		return values, true
	}
	return values[0], true
}

// resolveNumbered computes season / episode ids from the schema's value
// arithmetic: base_value + n, bounded by max_value, with complete_value for
// full-season releases.
func resolveNumbered(spec OptionSpec, n int, complete bool) (interface{}, bool) {
	if complete && spec.CompleteValue != 0 {
		return spec.CompleteValue, true
	}
	if n <= 0 {
		return nil, false
	}
	v := spec.BaseValue + n
	if spec.MaxValue != 0 && v > spec.MaxValue {
		v = spec.MaxValue
	}
	return v, true
}

// tmdbKeys returns the metadata-derived lookup keys for a facet.
func tmdbKeys(facet string, in OptionInput) []string {
	if in.Movie == nil {
		return nil
	}
	switch facet {
	case "language":
		return []string{in.Movie.OriginalLanguage}
	case "genre":
		return in.Movie.Genres
	case "country":
		return []string{in.Movie.Country}
	}
	return nil
}

// nameKeys returns the release-name-derived lookup keys for a facet.
func nameKeys(facet string, in OptionInput) []string {
	switch facet {
	case "quality":
		return []string{in.Release.Resolution, in.Release.Source}
	case "language", "hdr":
		keys := strings.FieldsFunc(in.Release.Name(), func(c rune) bool {
			return c == '.' || c == '-'
		})
		if facet == "hdr" && in.Release.HDR != "" {
			keys = append([]string{in.Release.HDR}, keys...)
		}
		return keys
	case "codec":
		return []string{in.Release.Codec}
	}
	return nil
}

// lookupAll returns mapping values for every key present, case-insensitive,
// preserving key order.
func lookupAll(m map[string]interface{}, keys []string) []interface{} {
	if len(m) == 0 {
		return nil
	}
	lower := make(map[string]interface{}, len(m))
	for k, v := range m {
		lower[strings.ToLower(k)] = v
	}
	var values []interface{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if v, ok := lower[strings.ToLower(k)]; ok {
			values = append(values, v)
		}
	}
	return values
}
