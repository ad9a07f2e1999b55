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
	"strings"
	"time"

	"github.com/seedarr/seedarr/utils/httputil"
)

// ProwlarrConfig defines ProwlarrClient configuration.
type ProwlarrConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c ProwlarrConfig) applyDefaults() ProwlarrConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// ProwlarrIndexer is one indexer registered in Prowlarr.
type ProwlarrIndexer struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	DefinitionName string   `json:"definitionName"`
	IndexerUrls    []string `json:"indexerUrls"`
	Enable         bool     `json:"enable"`
}

// ProwlarrHints describe how a tracker schema maps onto a Prowlarr indexer.
type ProwlarrHints struct {
	URLPatterns     []string `yaml:"url_patterns"`
	DefinitionNames []string `yaml:"definition_names"`
}

// ProwlarrClient lists indexers from a Prowlarr instance and matches them to
// tracker schemas.
type ProwlarrClient struct {
	config ProwlarrConfig
}

// NewProwlarrClient creates a new ProwlarrClient.
func NewProwlarrClient(config ProwlarrConfig) *ProwlarrClient {
	return &ProwlarrClient{config.applyDefaults()}
}

// Indexers returns all indexers registered in Prowlarr.
func (c *ProwlarrClient) Indexers(ctx context.Context) ([]ProwlarrIndexer, error) {
	resp, err := httputil.Get(
		fmt.Sprintf("%s/api/v1/indexer", c.config.URL),
		httputil.SendContext(ctx),
		httputil.SendHeaders(map[string]string{"X-Api-Key": c.config.APIKey}),
		httputil.SendTimeout(c.config.Timeout),
		httputil.SendRetry())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var indexers []ProwlarrIndexer
	if err := json.NewDecoder(resp.Body).Decode(&indexers); err != nil {
		return nil, fmt.Errorf("decode indexers: %s", err)
	}
	return indexers, nil
}

// Match returns the first indexer matching the hints, or false when none
// does. Definition names match case-insensitively; url patterns match by
// substring against any indexer url.
func Match(indexers []ProwlarrIndexer, hints ProwlarrHints) (ProwlarrIndexer, bool) {
	for _, idx := range indexers {
		for _, name := range hints.DefinitionNames {
			if strings.EqualFold(idx.DefinitionName, name) {
				return idx, true
			}
		}
		for _, pattern := range hints.URLPatterns {
			for _, u := range idx.IndexerUrls {
				if strings.Contains(strings.ToLower(u), strings.ToLower(pattern)) {
					return idx, true
				}
			}
		}
	}
	return ProwlarrIndexer{}, false
}
