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

// Package configutil provides an interface for loading and validating
// configuration data from YAML files.
//
// Other YAML files can be included via the 'extends' keyword. Only one level
// of extension depth is followed per file, but chains are allowed:
//
//	production.yaml:
//	  extends: base.yaml
//	  x: 1
//
// Values from the extending file override values from the extended file.
package configutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// ErrCycleRef is returned when there are circular dependencies detected in
// configuration files extending each other.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

// Extends define configuration files dependencies.
type Extends struct {
	Extends string `yaml:"extends"`
}

// ValidationError contains validation failures for each offending field.
type ValidationError struct {
	errorMap validator.ErrorMap
}

// ErrForField returns the validation error for the given field.
func (e ValidationError) ErrForField(name string) validator.ErrorArray {
	return e.errorMap[name]
}

func (e ValidationError) Error() string {
	var w bytes.Buffer

	fmt.Fprintf(&w, "validation failed")
	for f, err := range e.errorMap {
		fmt.Fprintf(&w, "   %s: %v\n", f, err)
	}

	return w.String()
}

// Load loads configuration based on config file at path, following any
// 'extends' chains, and validates the result.
func Load(path string, config interface{}) error {
	filenames, err := resolveExtends(path, readExtendsField)
	if err != nil {
		return err
	}
	return loadFiles(config, filenames)
}

func readExtendsField(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("read config: %s", err)
	}
	var cfg Extends
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("unmarshal config: %s", err)
	}
	return cfg.Extends, nil
}

type extendsField func(filename string) (string, error)

// resolveExtends returns the chain of config files implied by 'extends'
// fields, ordered base first. Relative references are resolved against the
// directory of the file declaring them.
func resolveExtends(filename string, readExtends extendsField) ([]string, error) {
	filenames := []string{filename}
	seen := map[string]struct{}{filename: {}}
	for {
		extends, err := readExtends(filename)
		if err != nil {
			return nil, err
		}
		if extends == "" {
			break
		}
		if !filepath.IsAbs(extends) {
			extends = filepath.Join(filepath.Dir(filename), extends)
		}
		if _, ok := seen[extends]; ok {
			return nil, ErrCycleRef
		}
		seen[extends] = struct{}{}
		filenames = append([]string{extends}, filenames...)
		filename = extends
	}
	return filenames, nil
}

// loadFiles loads a list of files, deep-merging values. Fields in later files
// override fields in earlier ones. Validation runs once, on the merged result.
func loadFiles(config interface{}, fnames []string) error {
	for _, fname := range fnames {
		data, err := os.ReadFile(fname)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return err
		}
	}
	if err := validator.Validate(config); err != nil {
		errMap, ok := err.(validator.ErrorMap)
		if !ok {
			return fmt.Errorf("validate config: %s", err)
		}
		return ValidationError{errMap}
	}
	return nil
}
