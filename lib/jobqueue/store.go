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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Store errors.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrNoJobReady  = errors.New("no job ready for dispatch")
)

// Store is the durable queue of jobs. All state changes survive process
// restart; the database row is the source of truth.
type Store struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewStore creates a new Store.
func NewStore(db *sqlx.DB, clk clock.Clock) *Store {
	return &Store{db, clk}
}

const jobColumns = `
	id, file_entry_id, batch_id, priority, state, attempt, max_attempts,
	scheduled_at, started_at, finished_at, last_error, created_at`

// Enqueue adds a QUEUED job for the entry, dispatchable at scheduledAt.
// Idempotent: if an active job for the entry exists, it is returned
// unchanged.
func (s *Store) Enqueue(fileEntryID string, p Priority, scheduledAt time.Time) (*Job, error) {
	return s.enqueue(fileEntryID, "", p, scheduledAt, defaultMaxAttempts)
}

// EnqueueInBatch is Enqueue for a job owned by a batch.
func (s *Store) EnqueueInBatch(
	fileEntryID, batchID string, p Priority, scheduledAt time.Time) (*Job, error) {

	return s.enqueue(fileEntryID, batchID, p, scheduledAt, defaultMaxAttempts)
}

const defaultMaxAttempts = 3

func (s *Store) enqueue(
	fileEntryID, batchID string, p Priority, scheduledAt time.Time, maxAttempts int) (*Job, error) {

	res, err := s.db.Exec(`
		INSERT INTO queue_job (file_entry_id, batch_id, priority, state, max_attempts, scheduled_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fileEntryID, batchID, p, StateQueued, maxAttempts, scheduledAt.UTC())
	if se, ok := err.(sqlite3.Error); ok {
		if se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return s.GetActiveByEntry(fileEntryID)
		}
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Get returns the job with the given id.
func (s *Store) Get(id int64) (*Job, error) {
	var j Job
	err := s.db.Get(&j, fmt.Sprintf(`
		SELECT %s FROM queue_job WHERE id=?
	`, jobColumns), id)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// GetActiveByEntry returns the QUEUED or RUNNING job for the entry.
func (s *Store) GetActiveByEntry(fileEntryID string) (*Job, error) {
	var j Job
	err := s.db.Get(&j, fmt.Sprintf(`
		SELECT %s FROM queue_job
		WHERE file_entry_id=? AND state IN ('QUEUED', 'RUNNING')
	`, jobColumns), fileEntryID)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Claim transactionally moves the next dispatchable job to RUNNING and
// returns it. Dispatch order is priority, then scheduled_at, then id. Jobs
// owned by a batch are skipped while the batch is at its concurrency limit.
// Returns ErrNoJobReady if nothing is dispatchable.
func (s *Store) Claim() (*Job, error) {
	now := s.clk.Now().UTC()
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.Get(&id, `
		SELECT j.id FROM queue_job j
		WHERE j.state = 'QUEUED'
			AND j.scheduled_at <= ?
			AND (j.batch_id = '' OR (
				SELECT COUNT(*) FROM queue_job r
				WHERE r.batch_id = j.batch_id AND r.state = 'RUNNING'
			) < (
				SELECT b.concurrency_limit FROM batch_job b WHERE b.id = j.batch_id
			))
		ORDER BY j.priority ASC, j.scheduled_at ASC, j.id ASC
		LIMIT 1
	`, now)
	if err == sql.ErrNoRows {
		return nil, ErrNoJobReady
	}
	if err != nil {
		return nil, err
	}
	res, err := tx.Exec(`
		UPDATE queue_job
		SET state='RUNNING', started_at=?
		WHERE id=? AND state='QUEUED'
	`, now, id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		// Another worker won the row.
		return nil, ErrNoJobReady
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Complete marks a RUNNING job DONE.
func (s *Store) Complete(id int64) error {
	return s.finish(id, StateDone, "")
}

// Fail marks a job FAILED with its final error.
func (s *Store) Fail(id int64, lastError string) error {
	return s.finish(id, StateFailed, lastError)
}

// Cancel marks a QUEUED or RUNNING job CANCELLED.
func (s *Store) Cancel(id int64) error {
	return s.finish(id, StateCancelled, "cancelled")
}

func (s *Store) finish(id int64, state State, lastError string) error {
	res, err := s.db.Exec(`
		UPDATE queue_job
		SET state=?, last_error=?, finished_at=?
		WHERE id=? AND state IN ('QUEUED', 'RUNNING')
	`, state, lastError, s.clk.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Requeue reschedules a RUNNING job after a retryable failure, delaying
// dispatch by delay. Once attempts are exhausted the job fails instead.
// Returns the resulting job state.
func (s *Store) Requeue(id int64, delay time.Duration, lastError string) (State, error) {
	j, err := s.Get(id)
	if err != nil {
		return "", err
	}
	if j.Attempt+1 >= j.MaxAttempts {
		if err := s.Fail(id, lastError); err != nil {
			return "", err
		}
		return StateFailed, nil
	}
	res, err := s.db.Exec(`
		UPDATE queue_job
		SET state='QUEUED', attempt=attempt+1, scheduled_at=?, last_error=?, started_at=NULL
		WHERE id=? AND state='RUNNING'
	`, s.clk.Now().UTC().Add(delay), lastError, id)
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		return "", ErrJobNotFound
	}
	return StateQueued, nil
}

// ResetOrphans requeues RUNNING jobs whose claim is older than grace. Called
// on startup to recover jobs orphaned by a crash.
func (s *Store) ResetOrphans(grace time.Duration) (int, error) {
	res, err := s.db.Exec(`
		UPDATE queue_job
		SET state='QUEUED', started_at=NULL
		WHERE state='RUNNING' AND started_at <= ?
	`, s.clk.Now().UTC().Add(-grace))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		panic("driver does not support RowsAffected")
	}
	return int(n), nil
}

// ListByBatch returns all jobs owned by a batch.
func (s *Store) ListByBatch(batchID string) ([]*Job, error) {
	var jobs []*Job
	err := s.db.Select(&jobs, fmt.Sprintf(`
		SELECT %s FROM queue_job WHERE batch_id=? ORDER BY id
	`, jobColumns), batchID)
	return jobs, err
}
