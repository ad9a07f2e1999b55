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
package entrystore

import (
	"fmt"

	"github.com/seedarr/seedarr/localdb"
	"github.com/seedarr/seedarr/utils/randutil"
	"github.com/seedarr/seedarr/utils/testutil"
)

// StoreFixture returns a Store backed by a temporary database.
func StoreFixture() (*Store, func()) {
	var cleanup testutil.Cleanup
	defer cleanup.Recover()

	db, c := localdb.Fixture()
	cleanup.Add(c)

	return NewStore(db), cleanup.Run
}

// PathFixture returns a random absolute media path.
func PathFixture() string {
	return fmt.Sprintf("/in/%s.mkv", randutil.Text(8))
}
