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
	"fmt"
	"os"
	"path/filepath"

	"github.com/seedarr/seedarr/core"
)

// Generator wraps static piece length configuration in order to
// deterministically generate torrent descriptors.
type Generator struct {
	pieceLengthConfig *pieceLengthConfig
	outputDir         string
}

// New creates a new Generator writing .torrent files under outputDir.
func New(config Config, outputDir string) (*Generator, error) {
	config = config.applyDefaults()
	plConfig, err := newPieceLengthConfig(config.PieceLengths)
	if err != nil {
		return nil, fmt.Errorf("piece length config: %s", err)
	}
	return &Generator{plConfig, outputDir}, nil
}

// Generate creates a torrent descriptor for the media file and writes it to
// disk as <releaseName>.<source>.torrent. Re-generating overwrites with
// identical bytes, so crash recovery may safely re-run it.
func (g *Generator) Generate(
	mediaPath, releaseName string, opts core.MetaInfoOptions) (string, *core.MetaInfo, error) {

	f, err := os.Open(mediaPath)
	if err != nil {
		return "", nil, fmt.Errorf("open media file: %s", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", nil, fmt.Errorf("stat media file: %s", err)
	}
	pieceLength := g.pieceLengthConfig.get(info.Size())

	mi, err := core.NewMetaInfo(filepath.Base(mediaPath), f, pieceLength, opts)
	if err != nil {
		return "", nil, fmt.Errorf("create metainfo: %s", err)
	}
	data, err := mi.Serialize()
	if err != nil {
		return "", nil, fmt.Errorf("serialize metainfo: %s", err)
	}

	if err := os.MkdirAll(g.outputDir, 0775); err != nil {
		return "", nil, fmt.Errorf("mkdir output: %s", err)
	}
	name := fmt.Sprintf("%s.%s.torrent", releaseName, opts.Source)
	torrentPath := filepath.Join(g.outputDir, name)
	if err := os.WriteFile(torrentPath, data, 0664); err != nil {
		return "", nil, fmt.Errorf("write torrent: %s", err)
	}
	return torrentPath, mi, nil
}
