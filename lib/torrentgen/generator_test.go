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
package torrentgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/utils/randutil"
)

func TestGenerate(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "The.Movie.2021.1080p.WEB-DL.H264-X.mkv")
	require.NoError(os.WriteFile(mediaPath, randutil.Text(1024), 0644))

	g, err := New(Config{
		PieceLengths: map[datasize.ByteSize]datasize.ByteSize{
			0: 256,
		},
	}, filepath.Join(dir, "out"))
	require.NoError(err)

	torrentPath, mi, err := g.Generate(
		mediaPath, "The.Movie.2021.1080p.WEB-DL.H264-X", core.MetaInfoOptions{
			Announce: "https://demo.example/announce?passkey=abc",
			Source:   "demo",
		})
	require.NoError(err)
	require.Equal(
		filepath.Join(dir, "out", "The.Movie.2021.1080p.WEB-DL.H264-X.demo.torrent"),
		torrentPath)
	require.Equal(4, mi.NumPieces())
	require.Equal(int64(1024), mi.Length())

	data, err := os.ReadFile(torrentPath)
	require.NoError(err)
	parsed, err := core.DeserializeMetaInfo(data)
	require.NoError(err)
	require.Equal(mi.InfoHash(), parsed.InfoHash())
	require.Equal("demo", parsed.Source())
}

func TestGenerateIsIdempotent(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "movie.mkv")
	require.NoError(os.WriteFile(mediaPath, randutil.Text(512), 0644))

	g, err := New(Config{}, filepath.Join(dir, "out"))
	require.NoError(err)

	opts := core.MetaInfoOptions{Source: "demo"}
	path1, mi1, err := g.Generate(mediaPath, "movie", opts)
	require.NoError(err)
	first, err := os.ReadFile(path1)
	require.NoError(err)

	path2, mi2, err := g.Generate(mediaPath, "movie", opts)
	require.NoError(err)
	require.Equal(path1, path2)
	require.Equal(mi1.InfoHash(), mi2.InfoHash())

	second, err := os.ReadFile(path2)
	require.NoError(err)
	require.Equal(first, second)
}

func TestGenerateDistinctSourcesDistinctFiles(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "movie.mkv")
	require.NoError(os.WriteFile(mediaPath, randutil.Text(512), 0644))

	g, err := New(Config{}, filepath.Join(dir, "out"))
	require.NoError(err)

	pathA, miA, err := g.Generate(mediaPath, "movie", core.MetaInfoOptions{Source: "a"})
	require.NoError(err)
	pathB, miB, err := g.Generate(mediaPath, "movie", core.MetaInfoOptions{Source: "b"})
	require.NoError(err)

	require.NotEqual(pathA, pathB)
	require.NotEqual(miA.InfoHash(), miB.InfoHash())
}

func TestPieceLengthSelection(t *testing.T) {
	require := require.New(t)

	plc, err := newPieceLengthConfig(map[datasize.ByteSize]datasize.ByteSize{
		0:               256 * datasize.KB,
		datasize.GB:     2 * datasize.MB,
		4 * datasize.GB: 8 * datasize.MB,
	})
	require.NoError(err)

	require.Equal(int64(256*datasize.KB), plc.get(int64(500*datasize.MB)))
	require.Equal(int64(2*datasize.MB), plc.get(int64(datasize.GB)))
	require.Equal(int64(2*datasize.MB), plc.get(int64(3*datasize.GB)))
	require.Equal(int64(8*datasize.MB), plc.get(int64(40*datasize.GB)))
}

func TestGenerateMissingFile(t *testing.T) {
	require := require.New(t)

	g, err := New(Config{}, t.TempDir())
	require.NoError(err)

	_, _, err = g.Generate("/does/not/exist.mkv", "x", core.MetaInfoOptions{Source: "demo"})
	require.Error(err)
}
