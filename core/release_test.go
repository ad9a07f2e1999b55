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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReleaseName(t *testing.T) {
	tests := []struct {
		desc     string
		input    string
		expected Release
	}{
		{
			"scene name with extension",
			"The.Movie.2021.1080p.WEB-DL.H264-X.mkv",
			Release{
				Title:      "The Movie",
				Year:       2021,
				Resolution: "1080p",
				Source:     "WEB-DL",
				Codec:      "H264",
				Group:      "X",
			},
		},
		{
			"space separated",
			"Another Movie 2019 720p BluRay x264-GRP.mp4",
			Release{
				Title:      "Another Movie",
				Year:       2019,
				Resolution: "720p",
				Source:     "BluRay",
				Codec:      "x264",
				Group:      "GRP",
			},
		},
		{
			"split web dl token",
			"Some.Film.2020.2160p.WEB.DL.HDR10.HEVC-ABC.mkv",
			Release{
				Title:      "Some Film",
				Year:       2020,
				Resolution: "2160p",
				Source:     "WEB-DL",
				Codec:      "HEVC",
				HDR:        "HDR10",
				Group:      "ABC",
			},
		},
		{
			"leading year is part of title",
			"1917.2019.1080p.BluRay.x264-TEAM.mkv",
			Release{
				Title:      "1917",
				Year:       2019,
				Resolution: "1080p",
				Source:     "BluRay",
				Codec:      "x264",
				Group:      "TEAM",
			},
		},
		{
			"no group and trailing source hyphen token",
			"Plain.Movie.2018.1080p.WEB-DL.mkv",
			Release{
				Title:      "Plain Movie",
				Year:       2018,
				Resolution: "1080p",
				Source:     "WEB-DL",
			},
		},
		{
			"underscores",
			"Old_Movie_1999_480p_DVDRip_XviD-OLD.avi",
			Release{
				Title:      "Old Movie",
				Year:       1999,
				Resolution: "480p",
				Source:     "DVDRip",
				Codec:      "XviD",
				Group:      "OLD",
			},
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			require := require.New(t)

			r, err := ParseReleaseName(test.input)
			require.NoError(err)
			require.Equal(test.expected, r)
		})
	}
}

func TestParseReleaseNameErrors(t *testing.T) {
	require := require.New(t)

	_, err := ParseReleaseName("")
	require.Error(err)
}

func TestReleaseName(t *testing.T) {
	require := require.New(t)

	r := ReleaseFixture()
	require.Equal("The.Movie.2021.1080p.WEB-DL.H264-X", r.Name())
}

func TestReleaseNameRoundTrip(t *testing.T) {
	require := require.New(t)

	r := ReleaseFixture()
	parsed, err := ParseReleaseName(r.Name() + ".mkv")
	require.NoError(err)
	require.Equal(r, parsed)
}

func TestReleaseNameOmitsZeroTokens(t *testing.T) {
	require := require.New(t)

	r := Release{Title: "Bare Title", Year: 2000}
	require.Equal("Bare.Title.2000", r.Name())
}

func TestMediaInfoResolution(t *testing.T) {
	tests := []struct {
		width, height int
		expected      string
	}{
		{3840, 2160, "2160p"},
		{1920, 1080, "1080p"},
		{1920, 800, "1080p"}, // Scope aspect ratio still counts as 1080p.
		{1280, 720, "720p"},
		{720, 576, "576p"},
		{720, 480, "480p"},
		{0, 0, ""},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			m := MediaInfo{Width: test.width, Height: test.height}
			require.Equal(t, test.expected, m.Resolution())
		})
	}
}
