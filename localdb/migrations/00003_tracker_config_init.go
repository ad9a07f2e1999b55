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
package migrations

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(up00003, down00003)
}

func up00003(tx *sql.Tx) error {
	_, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS tracker_config (
		slug       text      NOT NULL,
		name       text      NOT NULL,
		enabled    integer   NOT NULL DEFAULT 1,
		schema     blob      NOT NULL,
		api_key    text      NOT NULL DEFAULT '',
		passkey    text      NOT NULL DEFAULT '',
		updated_at timestamp DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(slug)
	);`)
	return err
}

func down00003(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE tracker_config;`)
	return err
}
