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
	goose.AddMigration(up00002, down00002)
}

func up00002(tx *sql.Tx) error {
	if _, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS queue_job (
		id            integer   PRIMARY KEY AUTOINCREMENT,
		file_entry_id text      NOT NULL,
		batch_id      text      NOT NULL DEFAULT '',
		priority      integer   NOT NULL,
		state         text      NOT NULL,
		attempt       integer   NOT NULL DEFAULT 0,
		max_attempts  integer   NOT NULL DEFAULT 3,
		scheduled_at  timestamp NOT NULL,
		started_at    timestamp,
		finished_at   timestamp,
		last_error    text      NOT NULL DEFAULT '',
		created_at    timestamp DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return err
	}
	// At most one active job per file entry.
	if _, err := tx.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_job_active_entry
		ON queue_job(file_entry_id)
		WHERE state IN ('QUEUED', 'RUNNING');`); err != nil {
		return err
	}
	_, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS batch_job (
		id                text      NOT NULL,
		priority          integer   NOT NULL,
		concurrency_limit integer   NOT NULL,
		status            text      NOT NULL,
		total             integer   NOT NULL,
		completed         integer   NOT NULL DEFAULT 0,
		failed            integer   NOT NULL DEFAULT 0,
		cancelled         integer   NOT NULL DEFAULT 0,
		created_at        timestamp DEFAULT CURRENT_TIMESTAMP,
		updated_at        timestamp DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(id)
	);`)
	return err
}

func down00002(tx *sql.Tx) error {
	if _, err := tx.Exec(`DROP TABLE batch_job;`); err != nil {
		return err
	}
	_, err := tx.Exec(`DROP TABLE queue_job;`)
	return err
}
