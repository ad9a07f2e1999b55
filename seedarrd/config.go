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
package main

import (
	"go.uber.org/zap"

	"github.com/seedarr/seedarr/lib/jobqueue"
	"github.com/seedarr/seedarr/lib/pipeline"
	"github.com/seedarr/seedarr/lib/services"
	"github.com/seedarr/seedarr/lib/torrentgen"
	"github.com/seedarr/seedarr/lib/trackers"
	"github.com/seedarr/seedarr/localdb"
	"github.com/seedarr/seedarr/metrics"
)

// TrackerSeed bootstraps one tracker config from a schema file on disk.
type TrackerSeed struct {
	SchemaFile  string               `yaml:"schema_file"`
	Credentials trackers.Credentials `yaml:"credentials"`
	Enabled     bool                 `yaml:"enabled"`
}

// Config defines seedarrd configuration.
type Config struct {
	ZapLogging zap.Config                   `yaml:"zap"`
	Metrics    metrics.Config               `yaml:"metrics"`
	Database   localdb.Config               `yaml:"database"`
	Pipeline   pipeline.Config              `yaml:"pipeline"`
	Worker     jobqueue.WorkerConfig        `yaml:"worker"`
	TorrentGen torrentgen.Config            `yaml:"torrent_gen"`
	Services   services.RegistryConfig      `yaml:"services"`
	MediaInfo  services.MediaInfoToolConfig `yaml:"media_info"`
	Trackers   []TrackerSeed                `yaml:"trackers"`
}
