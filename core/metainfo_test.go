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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMetaInfo(t *testing.T) {
	require := require.New(t)

	content := []byte("0123456789abcdef")
	mi, err := NewMetaInfo("file.mkv", bytes.NewReader(content), 4, MetaInfoOptions{
		Announce: "https://tracker.example/announce?passkey=abc",
		Source:   "demo",
	})
	require.NoError(err)
	require.Equal(int64(16), mi.Length())
	require.Equal(4, mi.NumPieces())
	require.Equal(int64(4), mi.PieceLength())
	require.Equal("demo", mi.Source())
	require.Equal("file.mkv", mi.Name())
	require.Equal("https://tracker.example/announce?passkey=abc", mi.Announce())
}

func TestNewMetaInfoRequiresSource(t *testing.T) {
	require := require.New(t)

	_, err := NewMetaInfo("file.mkv", bytes.NewReader([]byte("x")), 4, MetaInfoOptions{})
	require.Error(err)
}

func TestNewMetaInfoRejectsBadPieceLength(t *testing.T) {
	require := require.New(t)

	_, err := NewMetaInfo(
		"file.mkv", bytes.NewReader([]byte("x")), 0, MetaInfoOptions{Source: "demo"})
	require.Error(err)
}

func TestMetaInfoSourceChangesInfoHash(t *testing.T) {
	require := require.New(t)

	content := []byte("0123456789abcdef")
	newMetaInfo := func(source string) *MetaInfo {
		mi, err := NewMetaInfo(
			"file.mkv", bytes.NewReader(content), 4, MetaInfoOptions{Source: source})
		require.NoError(err)
		return mi
	}
	a := newMetaInfo("tracker-a")
	b := newMetaInfo("tracker-b")
	require.NotEqual(a.InfoHash(), b.InfoHash())
	require.Equal(newMetaInfo("tracker-a").InfoHash(), a.InfoHash())
}

func TestMetaInfoSerializeRoundTrip(t *testing.T) {
	require := require.New(t)

	mi := MetaInfoFixture()

	data, err := mi.Serialize()
	require.NoError(err)

	result, err := DeserializeMetaInfo(data)
	require.NoError(err)
	require.Equal(mi, result)
}

func TestMetaInfoSerializeContainsPrivateFlag(t *testing.T) {
	require := require.New(t)

	mi := MetaInfoFixture()

	data, err := mi.Serialize()
	require.NoError(err)
	require.Contains(string(data), "7:privatei1e")
	require.Contains(string(data), "6:source4:demo")
}

func TestInfoHashHexRoundTrip(t *testing.T) {
	require := require.New(t)

	h := MetaInfoFixture().InfoHash()
	result, err := NewInfoHashFromHex(h.Hex())
	require.NoError(err)
	require.Equal(h, result)
}

func TestNewInfoHashFromHexErrors(t *testing.T) {
	require := require.New(t)

	_, err := NewInfoHashFromHex("abc")
	require.Error(err)
}
