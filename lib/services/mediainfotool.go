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
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/seedarr/seedarr/core"
)

// MediaInfoToolConfig defines MediaInfoTool configuration.
type MediaInfoToolConfig struct {
	Binary string `yaml:"binary"`
}

func (c MediaInfoToolConfig) applyDefaults() MediaInfoToolConfig {
	if c.Binary == "" {
		c.Binary = "mediainfo"
	}
	return c
}

// MediaInfoTool analyzes media files by shelling out to the mediainfo
// binary.
type MediaInfoTool struct {
	config MediaInfoToolConfig
}

// NewMediaInfoTool creates a new MediaInfoTool.
func NewMediaInfoTool(config MediaInfoToolConfig) *MediaInfoTool {
	return &MediaInfoTool{config.applyDefaults()}
}

type mediaInfoOutput struct {
	Media struct {
		Track []map[string]interface{} `json:"track"`
	} `json:"media"`
}

// Analyze implements MediaInfoAnalyzer.
func (t *MediaInfoTool) Analyze(ctx context.Context, path string) (core.MediaInfo, error) {
	out, err := exec.CommandContext(
		ctx, t.config.Binary, "--Output=JSON", path).Output()
	if err != nil {
		return core.MediaInfo{}, fmt.Errorf("run %s: %s", t.config.Binary, err)
	}
	var parsed mediaInfoOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return core.MediaInfo{}, fmt.Errorf("parse mediainfo output: %s", err)
	}

	var info core.MediaInfo
	for _, track := range parsed.Media.Track {
		switch str(track["@type"]) {
		case "General":
			info.Size = num(track["FileSize"])
			info.Duration = time.Duration(num(track["Duration"])) * time.Second
		case "Video":
			info.Width = int(num(track["Width"]))
			info.Height = int(num(track["Height"]))
			info.Codec = str(track["Format"])
			info.HDRFormat = str(track["HDR_Format"])
		case "Audio":
			info.Audio = append(info.Audio, core.AudioTrack{
				Codec:    str(track["Format"]),
				Channels: str(track["Channels"]),
				Language: str(track["Language"]),
			})
		case "Text":
			if lang := str(track["Language"]); lang != "" {
				info.Subtitles = append(info.Subtitles, lang)
			}
		}
	}
	return info, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return int64(f)
	}
	return 0
}
