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
	"bytes"
	"time"

	"github.com/seedarr/seedarr/utils/randutil"
)

// ReleaseFixture returns a fully populated Release.
func ReleaseFixture() Release {
	return Release{
		Title:      "The Movie",
		Year:       2021,
		Resolution: "1080p",
		Source:     "WEB-DL",
		Codec:      "H264",
		Group:      "X",
	}
}

// MediaInfoFixture returns a MediaInfo for a 1080p file of the given size.
func MediaInfoFixture(size int64) MediaInfo {
	return MediaInfo{
		Duration:  2 * time.Hour,
		Size:      size,
		Width:     1920,
		Height:    1080,
		Codec:     "AVC",
		Audio: []AudioTrack{
			{Codec: "EAC3", Channels: "6", Language: "en"},
		},
		Subtitles: []string{"en", "fr"},
	}
}

// MovieMetadataFixture returns a populated MovieMetadata.
func MovieMetadataFixture() MovieMetadata {
	return MovieMetadata{
		TmdbID:           550,
		ImdbID:           "tt0137523",
		Title:            "The Movie",
		OriginalTitle:    "The Movie",
		OriginalLanguage: "en",
		Year:             2021,
		Overview:         "A movie about movies.",
		Genres:           []string{"Drama"},
		Cast: []CastMember{
			{Name: "Some Actor", Character: "Lead", Order: 0},
		},
		Director:       "Some Director",
		Country:        "US",
		RuntimeMinutes: 120,
		VoteAverage:    8.4,
		VoteCount:      20000,
		PosterURL:      "https://image.example/poster.jpg",
		BackdropURL:    "https://image.example/backdrop.jpg",
	}
}

// SizedMetaInfoFixture creates a MetaInfo over random content of the given
// size and piece length.
func SizedMetaInfoFixture(size, pieceLength uint64) *MetaInfo {
	b := randutil.Text(size)
	mi, err := NewMetaInfo(
		"fixture.mkv",
		bytes.NewReader(b),
		int64(pieceLength),
		MetaInfoOptions{
			Announce: "https://tracker.example/announce",
			Source:   "demo",
		})
	if err != nil {
		panic(err)
	}
	return mi
}

// MetaInfoFixture creates a small random MetaInfo.
func MetaInfoFixture() *MetaInfo {
	return SizedMetaInfoFixture(256, 64)
}
