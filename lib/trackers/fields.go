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
	"encoding/json"
	"fmt"
	"mime/multipart"
	"regexp"
	"strconv"
	"strings"

	"github.com/seedarr/seedarr/core"
)

// BuildContext is the value tree upload fields resolve against. It is a
// plain JSON-style tree so dotted-path resolution never reflects over Go
// types.
type BuildContext map[string]interface{}

// NewBuildContext assembles the context from the entry artifacts. Torrent
// bytes are attached separately since they are binary.
func NewBuildContext(
	release core.Release,
	movie *core.MovieMetadata,
	mediaInfo *core.MediaInfo,
	nfo string,
	description string,
	torrent []byte,
	options map[string]interface{},
	category interface{}) (BuildContext, error) {

	ctx := BuildContext{
		"release":     toTree(release),
		"nfo":         nfo,
		"description": description,
		"options":     options,
		"category":    category,
		"name":        release.Name(),
	}
	if movie != nil {
		ctx["movie"] = toTree(*movie)
	}
	if mediaInfo != nil {
		ctx["media_info"] = toTree(*mediaInfo)
	}
	if torrent != nil {
		ctx["torrent"] = torrent
	}
	return ctx, nil
}

// toTree converts a struct into a JSON-style tree keyed by json tags.
func toTree(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal build context value: %s", err))
	}
	var tree interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		panic(fmt.Sprintf("unmarshal build context value: %s", err))
	}
	return tree
}

// Resolve walks a dotted path through the context. Missing segments return
// (nil, false).
func (c BuildContext) Resolve(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(c)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// resolveField resolves a field's value from the context, falling back to
// the declared default. Missing required fields are a terminal validation
// error; the upload never reaches the network.
func resolveField(f Field, ctx BuildContext) (interface{}, error) {
	if f.Source != "" {
		if v, ok := ctx.Resolve(f.Source); ok && v != nil {
			return v, nil
		}
	}
	if f.Default != nil {
		return f.Default, nil
	}
	if f.Required {
		return nil, core.Errorf(
			core.ErrKindValidation, "required upload field %q has no value", f.Name)
	}
	return nil, nil
}

// stringify renders a scalar field value in its form encoding.
func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float64:
		// JSON numbers; integral values must not grow a decimal point.
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return fmt.Sprint(v)
}

// repeatedValues normalizes a resolved value into the list emitted as
// repeated form keys.
func repeatedValues(v interface{}) []string {
	switch x := v.(type) {
	case []interface{}:
		values := make([]string, 0, len(x))
		for _, item := range x {
			values = append(values, stringify(item))
		}
		return values
	case []string:
		return x
	case nil:
		return nil
	}
	return []string{stringify(v)}
}

// BuildUploadBody walks the schema's upload fields in order and renders the
// multipart body. Each field type has a fixed encoding:
//
//	file     -> attached binary part
//	repeated -> one form part per value, same key
//	json     -> JSON-serialized value
//	others   -> stringified primitive
func BuildUploadBody(
	fields []Field, ctx BuildContext) (body []byte, contentType string, err error) {

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		v, err := resolveField(f, ctx)
		if err != nil {
			return nil, "", err
		}
		if v == nil {
			continue
		}
		switch f.Type {
		case FieldFile:
			data, ok := v.([]byte)
			if !ok {
				return nil, "", core.Errorf(
					core.ErrKindValidation, "file field %q is not binary", f.Name)
			}
			part, err := w.CreateFormFile(f.Name, f.Name+".torrent")
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(data); err != nil {
				return nil, "", err
			}
		case FieldRepeated:
			for _, value := range repeatedValues(v) {
				if err := w.WriteField(f.Name, value); err != nil {
					return nil, "", err
				}
			}
		case FieldJSON:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, "", err
			}
			if err := w.WriteField(f.Name, string(data)); err != nil {
				return nil, "", err
			}
		default:
			if err := w.WriteField(f.Name, stringify(v)); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// ValidatePayload applies per-field validation rules against resolved field
// values before any network call.
func ValidatePayload(
	fields []Field, rules map[string]FieldValidation, ctx BuildContext) error {

	resolved := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, err := resolveField(f, ctx)
		if err != nil {
			return err
		}
		if v != nil {
			resolved[f.Name] = v
		}
	}
	for name, rule := range rules {
		v, ok := resolved[name]
		if !ok {
			if rule.Required {
				return core.Errorf(core.ErrKindValidation, "field %q is required", name)
			}
			continue
		}
		s := stringify(v)
		if rule.MinLength > 0 && len(s) < rule.MinLength {
			return core.Errorf(
				core.ErrKindValidation, "field %q shorter than %d", name, rule.MinLength)
		}
		if rule.MaxLength > 0 && len(s) > rule.MaxLength {
			return core.Errorf(
				core.ErrKindValidation, "field %q longer than %d", name, rule.MaxLength)
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return fmt.Errorf("invalid pattern for field %q: %s", name, err)
			}
			if !re.MatchString(s) {
				return core.Errorf(
					core.ErrKindValidation, "field %q does not match %q", name, rule.Pattern)
			}
		}
	}
	return nil
}
