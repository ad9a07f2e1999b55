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
	"fmt"
	"time"
)

// Priority orders job dispatch. Lower values dispatch first.
type Priority int

// Job priorities.
const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	}
	return "normal"
}

// State is the lifecycle state of a queue job.
type State string

// Job states.
const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Active returns whether the job still occupies the per-entry active slot.
func (s State) Active() bool {
	return s == StateQueued || s == StateRunning
}

// Job is one scheduled execution attempt for a file entry.
type Job struct {
	ID          int64      `db:"id"`
	FileEntryID string     `db:"file_entry_id"`
	BatchID     string     `db:"batch_id"`
	Priority    Priority   `db:"priority"`
	State       State      `db:"state"`
	Attempt     int        `db:"attempt"`
	MaxAttempts int        `db:"max_attempts"`
	ScheduledAt time.Time  `db:"scheduled_at"`
	StartedAt   *time.Time `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	LastError   string     `db:"last_error"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (j *Job) String() string {
	return fmt.Sprintf("jobqueue.Job(id=%d, entry=%s, state=%s)", j.ID, j.FileEntryID, j.State)
}
