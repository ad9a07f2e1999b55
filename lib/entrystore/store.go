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
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	uuid "github.com/satori/go.uuid"
)

// Store errors.
var (
	ErrEntryExists       = errors.New("active entry already exists for path")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// Store persists file entries and their tracker results.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db}
}

const entryColumns = `
	id, file_path, release_name, status, error_message, error_kind,
	metadata, torrent_paths, nfo_path, screenshot_urls,
	created_at, updated_at,
	scanned_at, analyzed_at, approved_at, prepared_at, renamed_at,
	metadata_generated_at, uploaded_at`

// Create inserts a new PENDING entry for path and returns it. Returns
// ErrEntryExists if an active entry for path is already present.
func (s *Store) Create(path string) (*Entry, error) {
	e := &Entry{
		ID:           uuid.NewV4().String(),
		FilePath:     path,
		Status:       StatusPending,
		TorrentPaths: TorrentPaths{},
	}
	_, err := s.db.NamedExec(`
		INSERT INTO file_entry (
			id, file_path, status, metadata, torrent_paths, screenshot_urls
		) VALUES (
			:id, :file_path, :status, :metadata, :torrent_paths, :screenshot_urls
		)
	`, e)
	if se, ok := err.(sqlite3.Error); ok {
		if se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrEntryExists
		}
	}
	if err != nil {
		return nil, err
	}
	return s.GetByID(e.ID)
}

// GetByID returns the entry with the given id.
func (s *Store) GetByID(id string) (*Entry, error) {
	var e Entry
	err := s.db.Get(&e, fmt.Sprintf(`
		SELECT %s FROM file_entry WHERE id=?
	`, entryColumns), id)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByPath returns the active (non-terminal) entry for path.
func (s *Store) GetByPath(path string) (*Entry, error) {
	var e Entry
	err := s.db.Get(&e, fmt.Sprintf(`
		SELECT %s FROM file_entry
		WHERE file_path=? AND status NOT IN ('UPLOADED', 'FAILED', 'CANCELLED')
	`, entryColumns), path)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns all entries with the given statuses, newest first. With no
// statuses, all entries are returned.
func (s *Store) List(statuses ...Status) ([]*Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_entry`, entryColumns)
	var args []interface{}
	if len(statuses) > 0 {
		var err error
		query, args, err = sqlx.In(query+` WHERE status IN (?)`, statuses)
		if err != nil {
			return nil, err
		}
	}
	var entries []*Entry
	if err := s.db.Select(&entries, query+` ORDER BY created_at DESC, id DESC`, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

// Checkpoint atomically records that stage succeeded for e: the entry status
// advances to the stage's status, the stage's checkpoint timestamp is set
// (exactly once), and artifact fields are written together. e is refreshed
// from the stored row on success.
func (s *Store) Checkpoint(e *Entry, stage Stage) error {
	info, ok := stageInfos[stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if !e.Status.CanTransitionTo(info.status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, info.status)
	}
	query := fmt.Sprintf(`
		UPDATE file_entry
		SET status = :new_status,
			%s = COALESCE(%s, CURRENT_TIMESTAMP),
			file_path = :file_path,
			release_name = :release_name,
			metadata = :metadata,
			torrent_paths = :torrent_paths,
			nfo_path = :nfo_path,
			screenshot_urls = :screenshot_urls,
			error_message = '',
			error_kind = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = :id AND status = :old_status
	`, info.column, info.column)
	res, err := s.db.NamedExec(query, map[string]interface{}{
		"new_status":      info.status,
		"old_status":      e.Status,
		"id":              e.ID,
		"file_path":       e.FilePath,
		"release_name":    e.ReleaseName,
		"metadata":        e.Metadata,
		"torrent_paths":   e.TorrentPaths,
		"nfo_path":        e.NfoPath,
		"screenshot_urls": e.ScreenshotURLs,
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		return ErrInvalidTransition
	}
	fresh, err := s.GetByID(e.ID)
	if err != nil {
		return err
	}
	*e = *fresh
	return nil
}

// MarkFailed transitions the entry to FAILED, recording the error taxonomy
// kind and a human readable message. Partial artifacts are retained.
func (s *Store) MarkFailed(id string, kind, message string) error {
	return s.markTerminal(id, StatusFailed, kind, message)
}

// MarkCancelled transitions the entry to CANCELLED.
func (s *Store) MarkCancelled(id string) error {
	return s.markTerminal(id, StatusCancelled, "", "cancelled")
}

func (s *Store) markTerminal(id string, status Status, kind, message string) error {
	res, err := s.db.Exec(`
		UPDATE file_entry
		SET status = ?,
			error_kind = ?,
			error_message = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status NOT IN ('UPLOADED', 'FAILED', 'CANCELLED')
	`, status, kind, message, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		// Either missing or already terminal.
		if _, err := s.GetByID(id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// RecordTrackerResult upserts the result for (entry, tracker).
func (s *Store) RecordTrackerResult(r *TrackerResult) error {
	_, err := s.db.NamedExec(`
		INSERT INTO tracker_result (
			file_entry_id, tracker_slug, outcome, remote_torrent_id, remote_url, error
		) VALUES (
			:file_entry_id, :tracker_slug, :outcome, :remote_torrent_id, :remote_url, :error
		)
		ON CONFLICT(file_entry_id, tracker_slug) DO UPDATE SET
			outcome = excluded.outcome,
			remote_torrent_id = excluded.remote_torrent_id,
			remote_url = excluded.remote_url,
			error = excluded.error
	`, r)
	return err
}

// GetTrackerResults returns all tracker results for an entry.
func (s *Store) GetTrackerResults(entryID string) ([]*TrackerResult, error) {
	var results []*TrackerResult
	err := s.db.Select(&results, `
		SELECT file_entry_id, tracker_slug, outcome, remote_torrent_id, remote_url, error, created_at
		FROM tracker_result
		WHERE file_entry_id=?
		ORDER BY tracker_slug
	`, entryID)
	return results, err
}
