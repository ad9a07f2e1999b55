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
package jobqueue

import (
	"github.com/andres-erbsen/clock"

	"github.com/seedarr/seedarr/lib/entrystore"
	"github.com/seedarr/seedarr/localdb"
	"github.com/seedarr/seedarr/utils/testutil"
)

// StoreFixture returns a queue Store and entry Store sharing a temporary
// database, clocked by clk.
func StoreFixture(clk clock.Clock) (*Store, *entrystore.Store, func()) {
	var cleanup testutil.Cleanup
	defer cleanup.Recover()

	db, c := localdb.Fixture()
	cleanup.Add(c)

	return NewStore(db, clk), entrystore.NewStore(db), cleanup.Run
}
