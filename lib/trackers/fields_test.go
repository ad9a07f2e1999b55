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
	"bytes"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/core"
)

func buildContextFixture(t *testing.T) BuildContext {
	movie := core.MovieMetadataFixture()
	mediaInfo := core.MediaInfoFixture(4 << 30)
	ctx, err := NewBuildContext(
		core.ReleaseFixture(),
		&movie,
		&mediaInfo,
		"nfo text",
		"description text",
		[]byte("d8:announce0:e"),
		map[string]interface{}{
			"tags":    []interface{}{10, 15, 20},
			"quality": 3,
		},
		19)
	require.NoError(t, err)
	return ctx
}

func parseMultipart(t *testing.T, body []byte, contentType string) (map[string][]string, map[string][]byte) {
	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)

	files := make(map[string][]byte)
	for name, headers := range form.File {
		f, err := headers[0].Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(f)
		require.NoError(t, err)
		f.Close()
		files[name] = buf.Bytes()
	}
	return form.Value, files
}

func TestResolveDottedPath(t *testing.T) {
	require := require.New(t)

	ctx := buildContextFixture(t)

	v, ok := ctx.Resolve("movie.tmdb_id")
	require.True(ok)
	require.Equal(float64(550), v)

	v, ok = ctx.Resolve("release.title")
	require.True(ok)
	require.Equal("The Movie", v)

	_, ok = ctx.Resolve("movie.nonexistent")
	require.False(ok)

	_, ok = ctx.Resolve("movie.tmdb_id.deeper")
	require.False(ok)
}

func TestBuildUploadBodyRepeatedField(t *testing.T) {
	require := require.New(t)

	fields := []Field{
		{Name: "tag_ids", Type: FieldRepeated, Source: "options.tags"},
	}
	body, contentType, err := BuildUploadBody(fields, buildContextFixture(t))
	require.NoError(err)

	values, _ := parseMultipart(t, body, contentType)
	// Three entries under the same key, never a JSON array.
	require.Equal([]string{"10", "15", "20"}, values["tag_ids"])
	require.NotContains(string(body), "[10,15,20]")
}

func TestBuildUploadBodyFieldTypes(t *testing.T) {
	require := require.New(t)

	fields := []Field{
		{Name: "torrent", Type: FieldFile, Source: "torrent", Required: true},
		{Name: "name", Type: FieldString, Source: "name", Required: true},
		{Name: "tmdb", Type: FieldNumber, Source: "movie.tmdb_id"},
		{Name: "anonymous", Type: FieldBoolean, Source: "anonymous", Default: false},
		{Name: "mediainfo", Type: FieldJSON, Source: "media_info"},
	}
	body, contentType, err := BuildUploadBody(fields, buildContextFixture(t))
	require.NoError(err)

	values, files := parseMultipart(t, body, contentType)
	require.Equal([]byte("d8:announce0:e"), files["torrent"])
	require.Equal([]string{"The.Movie.2021.1080p.WEB-DL.H264-X"}, values["name"])
	require.Equal([]string{"550"}, values["tmdb"])
	require.Equal([]string{"0"}, values["anonymous"])
	require.Contains(values["mediainfo"][0], `"height":1080`)
}

func TestBuildUploadBodyMissingRequiredFieldIsTerminal(t *testing.T) {
	require := require.New(t)

	fields := []Field{
		{Name: "poster", Type: FieldString, Source: "movie.missing_field", Required: true},
	}
	_, _, err := BuildUploadBody(fields, buildContextFixture(t))
	require.Error(err)
	require.Equal(core.ErrKindValidation, core.KindOf(err))
	require.False(core.IsRetryable(err))
}

func TestBuildUploadBodyOptionalMissingFieldSkipped(t *testing.T) {
	require := require.New(t)

	fields := []Field{
		{Name: "name", Type: FieldString, Source: "name"},
		{Name: "poster", Type: FieldString, Source: "movie.missing_field"},
	}
	body, contentType, err := BuildUploadBody(fields, buildContextFixture(t))
	require.NoError(err)

	values, _ := parseMultipart(t, body, contentType)
	_, ok := values["poster"]
	require.False(ok)
}

func TestValidatePayload(t *testing.T) {
	require := require.New(t)

	fields := []Field{
		{Name: "name", Type: FieldString, Source: "name"},
	}
	ctx := buildContextFixture(t)

	require.NoError(ValidatePayload(fields, map[string]FieldValidation{
		"name": {Required: true, MinLength: 3, Pattern: `^[A-Za-z0-9.\-]+$`},
	}, ctx))

	err := ValidatePayload(fields, map[string]FieldValidation{
		"name": {MaxLength: 5},
	}, ctx)
	require.Equal(core.ErrKindValidation, core.KindOf(err))

	err = ValidatePayload(fields, map[string]FieldValidation{
		"missing": {Required: true},
	}, ctx)
	require.Equal(core.ErrKindValidation, core.KindOf(err))
}
