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
	goose.AddMigration(up00001, down00001)
}

func up00001(tx *sql.Tx) error {
	if _, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS file_entry (
		id                    text      NOT NULL,
		file_path             text      NOT NULL,
		release_name          text      NOT NULL DEFAULT '',
		status                text      NOT NULL,
		error_message         text      NOT NULL DEFAULT '',
		error_kind            text      NOT NULL DEFAULT '',
		metadata              blob,
		torrent_paths         blob,
		nfo_path              text      NOT NULL DEFAULT '',
		screenshot_urls       blob,
		created_at            timestamp DEFAULT CURRENT_TIMESTAMP,
		updated_at            timestamp DEFAULT CURRENT_TIMESTAMP,
		scanned_at            timestamp,
		analyzed_at           timestamp,
		approved_at           timestamp,
		prepared_at           timestamp,
		renamed_at            timestamp,
		metadata_generated_at timestamp,
		uploaded_at           timestamp,
		PRIMARY KEY(id)
	);`); err != nil {
		return err
	}
	// file_path is unique among entries still in flight.
	if _, err := tx.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_file_entry_active_path
		ON file_entry(file_path)
		WHERE status NOT IN ('UPLOADED', 'FAILED', 'CANCELLED');`); err != nil {
		return err
	}
	_, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS tracker_result (
		file_entry_id     text      NOT NULL,
		tracker_slug      text      NOT NULL,
		outcome           text      NOT NULL,
		remote_torrent_id text      NOT NULL DEFAULT '',
		remote_url        text      NOT NULL DEFAULT '',
		error             text      NOT NULL DEFAULT '',
		created_at        timestamp DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(file_entry_id, tracker_slug)
	);`)
	return err
}

func down00001(tx *sql.Tx) error {
	if _, err := tx.Exec(`DROP TABLE tracker_result;`); err != nil {
		return err
	}
	_, err := tx.Exec(`DROP TABLE file_entry;`)
	return err
}
