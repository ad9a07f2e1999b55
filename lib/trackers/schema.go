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

// Package trackers implements the configurable tracker adapter. A single
// adapter interprets a declarative per-tracker schema; trackers never get
// tracker-specific code, only a schema document.
package trackers

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/seedarr/seedarr/lib/ratelimit"
	"github.com/seedarr/seedarr/lib/services"
)

// FieldType enumerates upload field encodings.
type FieldType string

// Upload field types. Repeated fields are emitted as repeated form keys
// (tags=1&tags=2), never as a JSON array; at least one supported tracker
// rejects the array form.
const (
	FieldFile     FieldType = "file"
	FieldString   FieldType = "string"
	FieldJSON     FieldType = "json"
	FieldBoolean  FieldType = "boolean"
	FieldRepeated FieldType = "repeated"
	FieldNumber   FieldType = "number"
)

// Field describes one upload form field.
type Field struct {
	Name     string      `yaml:"name"`
	Type     FieldType   `yaml:"type"`
	Source   string      `yaml:"source"` // Dotted path into the build context.
	Default  interface{} `yaml:"default"`
	Required bool        `yaml:"required"`
}

// Endpoint is a url template plus HTTP method.
type Endpoint struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

// OptionSpec maps a semantic facet (language, quality, ...) onto a tracker
// option type.
type OptionSpec struct {
	Type         int                    `yaml:"type"` // API option type id.
	Mappings     map[string]interface{} `yaml:"mappings"`
	TmdbMappings map[string]interface{} `yaml:"tmdb_mappings"`
	NameMappings map[string]interface{} `yaml:"name_mappings"`
	MultiSelect  bool                   `yaml:"multi_select"`
	Default      interface{}            `yaml:"default"`

	// Quality only.
	ResolutionFallback map[string]interface{} `yaml:"resolution_fallback"`

	// Language only.
	AutoMulti      bool        `yaml:"auto_multi"`
	AutoMultiValue interface{} `yaml:"auto_multi_value"`

	// Season / episode only.
	CompleteValue int `yaml:"complete_value"`
	BaseValue     int `yaml:"base_value"`
	MaxValue      int `yaml:"max_value"`
}

// SearchSpec configures the search endpoint's response shape.
type SearchSpec struct {
	DefaultQuery string            `yaml:"default_query"`
	Format       string            `yaml:"format"` // "torznab" or "json".
	ResultsPath  string            `yaml:"results_path"`
	Fields       map[string]string `yaml:"fields"` // Result field -> dotted path.
}

// UploadResponseSpec locates upload outcome fields in the tracker response.
type UploadResponseSpec struct {
	SuccessField       string `yaml:"success_field"`
	ErrorField         string `yaml:"error_field"`
	TorrentIDField     string `yaml:"torrent_id_field"`
	TorrentURLTemplate string `yaml:"torrent_url_template"`
}

// FieldValidation constrains one upload payload field.
type FieldValidation struct {
	Required  bool   `yaml:"required"`
	MinLength int    `yaml:"min_length"`
	MaxLength int    `yaml:"max_length"`
	Pattern   string `yaml:"pattern"`
}

// SanitizeStep is one step of the release-name sanitization pipeline.
type SanitizeStep struct {
	Action      string `yaml:"action"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Schema is the declarative per-tracker document. All tracker
// specialization flows through it.
type Schema struct {
	Tracker struct {
		Name    string `yaml:"name"`
		Slug    string `yaml:"slug"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"tracker"`

	Auth struct {
		Type         string `yaml:"type"` // bearer, api_key, passkey, cookie.
		Header       string `yaml:"header"`
		Prefix       string `yaml:"prefix"`
		PasskeyParam string `yaml:"passkey_param"`
	} `yaml:"auth"`

	Cloudflare struct {
		Enabled bool   `yaml:"enabled"`
		Service string `yaml:"service"`
	} `yaml:"cloudflare"`

	Endpoints map[string]Endpoint `yaml:"endpoints"`

	RateLimiting map[string]ratelimit.Config `yaml:"rate_limiting"`

	Upload struct {
		Fields []Field `yaml:"fields"`
	} `yaml:"upload"`

	Options map[string]OptionSpec `yaml:"options"`

	Categories map[string]interface{} `yaml:"categories"`

	Search SearchSpec `yaml:"search"`

	Response struct {
		Upload UploadResponseSpec `yaml:"upload"`
	} `yaml:"response"`

	Validation map[string]FieldValidation `yaml:"validation"`

	Sanitize []SanitizeStep `yaml:"sanitize"`

	Prowlarr services.ProwlarrHints `yaml:"prowlarr"`

	SkipOnDuplicate bool `yaml:"skip_on_duplicate"`
}

var validFieldTypes = map[FieldType]bool{
	FieldFile:     true,
	FieldString:   true,
	FieldJSON:     true,
	FieldBoolean:  true,
	FieldRepeated: true,
	FieldNumber:   true,
}

var validAuthTypes = map[string]bool{
	"bearer":  true,
	"api_key": true,
	"passkey": true,
	"cookie":  true,
}

// ParseSchema loads and validates a schema document. Validation happens once
// at load time so runtime interpretation never sees a malformed schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %s", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Export serializes the schema back into its document form.
func (s *Schema) Export() ([]byte, error) {
	return yaml.Marshal(s)
}

func (s *Schema) validate() error {
	if s.Tracker.Slug == "" {
		return fmt.Errorf("schema: tracker.slug is required")
	}
	if s.Tracker.BaseURL == "" {
		return fmt.Errorf("schema: tracker.base_url is required")
	}
	if s.Auth.Type != "" && !validAuthTypes[s.Auth.Type] {
		return fmt.Errorf("schema: unknown auth type %q", s.Auth.Type)
	}
	if s.Auth.Type == "passkey" && s.Auth.PasskeyParam == "" {
		return fmt.Errorf("schema: auth.passkey_param is required for passkey auth")
	}
	for _, f := range s.Upload.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema: upload field with empty name")
		}
		if !validFieldTypes[f.Type] {
			return fmt.Errorf("schema: upload field %q has unknown type %q", f.Name, f.Type)
		}
		if f.Source == "" && f.Default == nil {
			return fmt.Errorf("schema: upload field %q has neither source nor default", f.Name)
		}
	}
	for name, e := range s.Endpoints {
		if e.Path == "" {
			return fmt.Errorf("schema: endpoint %q has no path", name)
		}
	}
	switch s.Search.Format {
	case "", "torznab", "json":
	default:
		return fmt.Errorf("schema: unknown search format %q", s.Search.Format)
	}
	for _, step := range s.Sanitize {
		if !validSanitizeAction(step.Action) {
			return fmt.Errorf("schema: unknown sanitize action %q", step.Action)
		}
	}
	return nil
}

// EndpointURL returns the endpoint url for name, with the base url and auth
// query applied.
func (s *Schema) EndpointURL(name, passkey string) (method, url string, err error) {
	e, ok := s.Endpoints[name]
	if !ok {
		return "", "", fmt.Errorf("schema has no %q endpoint", name)
	}
	method = e.Method
	if method == "" {
		method = "GET"
	}
	url = e.Path
	if !strings.HasPrefix(url, "http") {
		url = strings.TrimRight(s.Tracker.BaseURL, "/") + "/" + strings.TrimLeft(url, "/")
	}
	if s.Auth.Type == "passkey" && passkey != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += fmt.Sprintf("%s%s=%s", sep, s.Auth.PasskeyParam, passkey)
	}
	return method, url, nil
}

// AnnounceURL composes the announce url embedded into generated torrents.
func (s *Schema) AnnounceURL(passkey string) string {
	base := strings.TrimRight(s.Tracker.BaseURL, "/")
	if passkey == "" {
		return base + "/announce"
	}
	return fmt.Sprintf("%s/announce?passkey=%s", base, passkey)
}
