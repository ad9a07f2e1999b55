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
	"strings"
	"time"
)

// AudioTrack describes a single audio stream.
type AudioTrack struct {
	Codec    string `json:"codec"`
	Channels string `json:"channels"`
	Language string `json:"language"`
}

// MediaInfo holds the technical attributes of a media file, as reported by
// the external analyzer.
type MediaInfo struct {
	Duration  time.Duration `json:"duration"`
	Size      int64         `json:"size"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Codec     string        `json:"codec"`
	HDRFormat string        `json:"hdr_format"`
	Audio     []AudioTrack  `json:"audio"`
	Subtitles []string      `json:"subtitles"`
}

// Resolution derives the scene resolution token from frame dimensions.
func (m MediaInfo) Resolution() string {
	switch {
	case m.Height > 1080 || m.Width > 1920:
		return "2160p"
	case m.Height > 720 || m.Width > 1280:
		return "1080p"
	case m.Height > 576 || m.Width > 1024:
		return "720p"
	case m.Height > 480:
		return "576p"
	case m.Height > 0:
		return "480p"
	}
	return ""
}

// HasAudioLanguage returns whether any audio track is in the given ISO 639-1
// language code.
func (m MediaInfo) HasAudioLanguage(lang string) bool {
	for _, t := range m.Audio {
		if strings.EqualFold(t.Language, lang) {
			return true
		}
	}
	return false
}
