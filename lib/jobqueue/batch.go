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

	uuid "github.com/satori/go.uuid"

	"github.com/seedarr/seedarr/utils/log"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

// Batch statuses.
const (
	BatchPending   BatchStatus = "PENDING"
	BatchRunning   BatchStatus = "RUNNING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchCancelled BatchStatus = "CANCELLED"
)

// ErrBatchNotFound is returned when a batch id is unknown.
var ErrBatchNotFound = errors.New("batch not found")

// Batch bundles jobs under a shared concurrency cap with aggregate progress.
// Progress counters are eventually consistent.
type Batch struct {
	ID               string      `db:"id"`
	Priority         Priority    `db:"priority"`
	ConcurrencyLimit int         `db:"concurrency_limit"`
	Status           BatchStatus `db:"status"`
	Total            int         `db:"total"`
	Completed        int         `db:"completed"`
	Failed           int         `db:"failed"`
	Cancelled        int         `db:"cancelled"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// Done returns the number of jobs which reached a terminal state.
func (b *Batch) Done() int {
	return b.Completed + b.Failed + b.Cancelled
}

// CreateBatch creates a batch and enqueues a job for every entry id under it.
func (s *Store) CreateBatch(
	entryIDs []string, p Priority, concurrencyLimit int) (*Batch, error) {

	if len(entryIDs) == 0 {
		return nil, errors.New("batch must contain at least one entry")
	}
	if concurrencyLimit <= 0 {
		concurrencyLimit = 1
	}
	b := &Batch{
		ID:               uuid.NewV4().String(),
		Priority:         p,
		ConcurrencyLimit: concurrencyLimit,
		Status:           BatchRunning,
		Total:            len(entryIDs),
	}
	if _, err := s.db.NamedExec(`
		INSERT INTO batch_job (id, priority, concurrency_limit, status, total)
		VALUES (:id, :priority, :concurrency_limit, :status, :total)
	`, b); err != nil {
		return nil, err
	}
	now := s.clk.Now()
	for _, entryID := range entryIDs {
		if _, err := s.enqueue(entryID, b.ID, p, now, defaultMaxAttempts); err != nil {
			log.With("batch", b.ID, "entry", entryID).Errorf("Error enqueueing batch job: %s", err)
		}
	}
	return s.GetBatch(b.ID)
}

// GetBatch returns the batch with the given id.
func (s *Store) GetBatch(id string) (*Batch, error) {
	var b Batch
	err := s.db.Get(&b, `
		SELECT id, priority, concurrency_limit, status, total,
			completed, failed, cancelled, created_at, updated_at
		FROM batch_job WHERE id=?
	`, id)
	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBatch cancels the batch and every active job it owns. Running jobs
// stop cooperatively at their next stage boundary.
func (s *Store) CancelBatch(id string) error {
	res, err := s.db.Exec(`
		UPDATE batch_job
		SET status=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=? AND status IN ('PENDING', 'RUNNING')
	`, BatchCancelled, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		if _, err := s.GetBatch(id); err != nil {
			return err
		}
		return nil
	}
	jobs, err := s.ListByBatch(id)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if !j.State.Active() {
			continue
		}
		if err := s.Cancel(j.ID); err != nil && err != ErrJobNotFound {
			return fmt.Errorf("cancel job %d: %s", j.ID, err)
		}
	}
	return nil
}

// BatchJobFinished folds a terminal job state into the batch counters and
// finalizes the batch once every job is done. Returns the updated batch.
func (s *Store) BatchJobFinished(batchID string, state State) (*Batch, error) {
	var column string
	switch state {
	case StateDone:
		column = "completed"
	case StateFailed:
		column = "failed"
	case StateCancelled:
		column = "cancelled"
	default:
		return nil, fmt.Errorf("job state %s is not terminal", state)
	}
	if _, err := s.db.Exec(fmt.Sprintf(`
		UPDATE batch_job
		SET %s = %s + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, column, column), batchID); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`
		UPDATE batch_job
		SET status = 'COMPLETED', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'RUNNING'
			AND completed + failed + cancelled >= total
	`, batchID); err != nil {
		return nil, err
	}
	return s.GetBatch(batchID)
}
