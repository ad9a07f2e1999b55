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
package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Release holds the tokens which identify a media release. Tokens absent from
// the source name are left zero-valued.
type Release struct {
	Title      string `json:"title"`
	Year       int    `json:"year"`
	Resolution string `json:"resolution"`
	Source     string `json:"source"`
	Codec      string `json:"codec"`
	HDR        string `json:"hdr"`
	Group      string `json:"group"`
}

var (
	yearRegexp       = regexp.MustCompile(`^(19|20)\d{2}$`)
	resolutionRegexp = regexp.MustCompile(`^(2160p|1440p|1080p|1080i|720p|576p|480p)$`)
)

// Source tokens, normalized casing keyed by upper-cased token.
var sourceTokens = map[string]string{
	"WEB-DL":   "WEB-DL",
	"WEBDL":    "WEB-DL",
	"WEB":      "WEB-DL",
	"WEBRIP":   "WEBRip",
	"BLURAY":   "BluRay",
	"BLU-RAY":  "BluRay",
	"BDRIP":    "BDRip",
	"BRRIP":    "BRRip",
	"REMUX":    "REMUX",
	"HDTV":     "HDTV",
	"DVDRIP":   "DVDRip",
	"DVDSCR":   "DVDScr",
	"CAM":      "CAM",
	"TELESYNC": "TS",
	"TS":       "TS",
}

var codecTokens = map[string]string{
	"X264":  "x264",
	"X265":  "x265",
	"H264":  "H264",
	"H.264": "H264",
	"H265":  "H265",
	"H.265": "H265",
	"HEVC":  "HEVC",
	"AV1":   "AV1",
	"XVID":  "XviD",
	"VC-1":  "VC-1",
	"MPEG2": "MPEG2",
}

var hdrTokens = map[string]string{
	"HDR":    "HDR",
	"HDR10":  "HDR10",
	"HDR10+": "HDR10+",
	"DV":     "DV",
	"DOVI":   "DV",
	"SDR":    "SDR",
}

// ParseReleaseName extracts release tokens from a scene-style file name. The
// extension is stripped, separators may be dots, spaces or underscores, and
// the group is the suffix following the final hyphen. Everything before the
// year (or the first recognized token) is the title guess.
func ParseReleaseName(name string) (Release, error) {
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if name == "" {
		return Release{}, errors.New("empty release name")
	}

	var r Release

	// The group never contains separators, so it can be split off before
	// tokenizing. Known tokens ("WEB-DL", "VC-1") are not groups.
	if i := strings.LastIndex(name, "-"); i > 0 && i < len(name)-1 {
		group := name[i+1:]
		if !strings.ContainsAny(group, ". _") && !knownToken(group) {
			r.Group = group
			name = name[:i]
		}
	}

	tokens := strings.FieldsFunc(name, func(c rune) bool {
		return c == '.' || c == ' ' || c == '_'
	})

	titleEnd := -1
	for i, tok := range tokens {
		upper := strings.ToUpper(tok)
		switch {
		case yearRegexp.MatchString(tok) && i > 0:
			// A leading year is a title ("1917"), not a release year.
			if r.Year == 0 {
				r.Year, _ = strconv.Atoi(tok)
				if titleEnd == -1 {
					titleEnd = i
				}
			}
		case resolutionRegexp.MatchString(strings.ToLower(tok)):
			r.Resolution = strings.ToLower(tok)
			if titleEnd == -1 {
				titleEnd = i
			}
		case sourceTokens[upper] != "":
			if r.Source == "" {
				// "WEB" followed by "DL" is a split WEB-DL token.
				if upper == "WEB" && i+1 < len(tokens) && strings.EqualFold(tokens[i+1], "DL") {
					r.Source = "WEB-DL"
				} else {
					r.Source = sourceTokens[upper]
				}
			}
			if titleEnd == -1 {
				titleEnd = i
			}
		case codecTokens[upper] != "":
			r.Codec = codecTokens[upper]
			if titleEnd == -1 {
				titleEnd = i
			}
		case hdrTokens[upper] != "":
			r.HDR = hdrTokens[upper]
			if titleEnd == -1 {
				titleEnd = i
			}
		}
	}
	if titleEnd == -1 {
		titleEnd = len(tokens)
	}
	r.Title = strings.Join(tokens[:titleEnd], " ")
	if r.Title == "" {
		return Release{}, fmt.Errorf("no title tokens in %q", name)
	}
	return r, nil
}

// Name renders the canonical release name,
// Title.Year.Resolution.Source.HDR.Codec-GROUP. Zero-valued tokens are omitted.
func (r Release) Name() string {
	parts := []string{strings.ReplaceAll(r.Title, " ", ".")}
	if r.Year > 0 {
		parts = append(parts, strconv.Itoa(r.Year))
	}
	if r.Resolution != "" {
		parts = append(parts, r.Resolution)
	}
	if r.Source != "" {
		parts = append(parts, r.Source)
	}
	if r.HDR != "" {
		parts = append(parts, r.HDR)
	}
	if r.Codec != "" {
		parts = append(parts, r.Codec)
	}
	s := strings.Join(parts, ".")
	if r.Group != "" {
		s += "-" + r.Group
	}
	return s
}

func (r Release) String() string {
	return r.Name()
}

func knownToken(tok string) bool {
	upper := strings.ToUpper(tok)
	if upper == "DL" {
		return true
	}
	if sourceTokens[upper] != "" || codecTokens[upper] != "" || hdrTokens[upper] != "" {
		return true
	}
	return resolutionRegexp.MatchString(strings.ToLower(tok))
}
