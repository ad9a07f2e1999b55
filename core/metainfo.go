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
	"crypto/sha1"
	"errors"
	"fmt"
	"io"

	"github.com/jackpal/bencode-go"
)

// info is a standard single-file BitTorrent info dictionary. Pieces holds the
// concatenated 20-byte SHA1 piece hashes. Source differentiates otherwise
// identical torrents per tracker so each gets a distinct info hash.
type info struct {
	PieceLength int64  `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
	Name        string `bencode:"name"`
	Length      int64  `bencode:"length"`
	Private     int    `bencode:"private"`
	Source      string `bencode:"source"`
}

// Hash computes the InfoHash of info.
func (info *info) Hash() (InfoHash, error) {
	var b bytes.Buffer
	if err := bencode.Marshal(&b, *info); err != nil {
		return InfoHash{}, fmt.Errorf("bencode: %s", err)
	}
	return NewInfoHashFromBytes(b.Bytes()), nil
}

// MetaInfoOptions are the tracker-facing fields of a torrent descriptor.
type MetaInfoOptions struct {
	Announce  string
	Source    string
	Comment   string
	CreatedBy string
	CreatedAt int64
}

// MetaInfo is a complete torrent metainfo document.
type MetaInfo struct {
	announce     string
	comment      string
	createdBy    string
	creationDate int64
	info         info
	infoHash     InfoHash
}

// NewMetaInfo creates a private single-file MetaInfo by hashing blob in
// pieceLength chunks.
func NewMetaInfo(
	name string, blob io.Reader, pieceLength int64, opts MetaInfoOptions) (*MetaInfo, error) {

	if opts.Source == "" {
		return nil, errors.New("source must be non-empty")
	}
	length, pieces, err := calcPieces(blob, pieceLength)
	if err != nil {
		return nil, err
	}
	info := info{
		PieceLength: pieceLength,
		Pieces:      pieces,
		Name:        name,
		Length:      length,
		Private:     1,
		Source:      opts.Source,
	}
	h, err := info.Hash()
	if err != nil {
		return nil, fmt.Errorf("compute info hash: %s", err)
	}
	return &MetaInfo{
		announce:     opts.Announce,
		comment:      opts.Comment,
		createdBy:    opts.CreatedBy,
		creationDate: opts.CreatedAt,
		info:         info,
		infoHash:     h,
	}, nil
}

// InfoHash returns the torrent InfoHash.
func (mi *MetaInfo) InfoHash() InfoHash {
	return mi.infoHash
}

// Announce returns the torrent announce URL.
func (mi *MetaInfo) Announce() string {
	return mi.announce
}

// Source returns the per-tracker source flag.
func (mi *MetaInfo) Source() string {
	return mi.info.Source
}

// Name returns the torrent file name.
func (mi *MetaInfo) Name() string {
	return mi.info.Name
}

// Length returns the length of the original file.
func (mi *MetaInfo) Length() int64 {
	return mi.info.Length
}

// PieceLength returns the piece length used to break up the original file.
// The final piece may be shorter.
func (mi *MetaInfo) PieceLength() int64 {
	return mi.info.PieceLength
}

// NumPieces returns the number of pieces in the torrent.
func (mi *MetaInfo) NumPieces() int {
	return len(mi.info.Pieces) / sha1.Size
}

// metaInfoDict is the bencoded wire form of MetaInfo.
type metaInfoDict struct {
	Announce     string `bencode:"announce"`
	Comment      string `bencode:"comment"`
	CreatedBy    string `bencode:"created by"`
	CreationDate int64  `bencode:"creation date"`
	Info         info   `bencode:"info"`
}

// Serialize converts mi to a bencoded .torrent blob.
func (mi *MetaInfo) Serialize() ([]byte, error) {
	var b bytes.Buffer
	d := metaInfoDict{
		Announce:     mi.announce,
		Comment:      mi.comment,
		CreatedBy:    mi.createdBy,
		CreationDate: mi.creationDate,
		Info:         mi.info,
	}
	if err := bencode.Marshal(&b, d); err != nil {
		return nil, fmt.Errorf("bencode: %s", err)
	}
	return b.Bytes(), nil
}

// DeserializeMetaInfo reconstructs a MetaInfo from a bencoded .torrent blob.
func DeserializeMetaInfo(data []byte) (*MetaInfo, error) {
	var d metaInfoDict
	if err := bencode.Unmarshal(bytes.NewReader(data), &d); err != nil {
		return nil, fmt.Errorf("bencode: %s", err)
	}
	h, err := d.Info.Hash()
	if err != nil {
		return nil, fmt.Errorf("compute info hash: %s", err)
	}
	return &MetaInfo{
		announce:     d.Announce,
		comment:      d.Comment,
		createdBy:    d.CreatedBy,
		creationDate: d.CreationDate,
		info:         d.Info,
		infoHash:     h,
	}, nil
}

// calcPieces hashes blob content in pieceLength chunks, returning the total
// length and the concatenated piece hashes.
func calcPieces(blob io.Reader, pieceLength int64) (length int64, pieces string, err error) {
	if pieceLength <= 0 {
		return 0, "", errors.New("piece length must be positive")
	}
	var b bytes.Buffer
	for {
		h := sha1.New()
		n, err := io.CopyN(h, blob, pieceLength)
		if err != nil && err != io.EOF {
			return 0, "", fmt.Errorf("read blob: %s", err)
		}
		length += n
		if n == 0 {
			break
		}
		b.Write(h.Sum(nil))
		if n < pieceLength {
			break
		}
	}
	return length, b.String(), nil
}
