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
package osutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureFilePresent initializes a file and its parent directories, if they do
// not already exist.
func EnsureFilePresent(name string, perm os.FileMode) error {
	if _, err := os.Stat(name); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(name), perm); err != nil {
			return fmt.Errorf("mkdir: %s", err)
		}
		f, err := os.OpenFile(name, os.O_RDONLY|os.O_CREATE, perm)
		if err != nil {
			return fmt.Errorf("create: %s", err)
		}
		f.Close()
	} else if err != nil {
		return fmt.Errorf("stat: %s", err)
	}
	return nil
}

// IsEmpty returns true if directory dir contains no entries.
func IsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
