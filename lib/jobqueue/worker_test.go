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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/entrystore"
	"github.com/seedarr/seedarr/lib/events"
	"github.com/seedarr/seedarr/utils/backoff"
)

// stubRunner commits checkpoints for every stage, optionally failing
// configured stages.
type stubRunner struct {
	sync.Mutex
	entries  *entrystore.Store
	failures map[entrystore.Stage]error
	runs     []entrystore.Stage
}

func newStubRunner(entries *entrystore.Store) *stubRunner {
	return &stubRunner{
		entries:  entries,
		failures: make(map[entrystore.Stage]error),
	}
}

func (r *stubRunner) failOn(stage entrystore.Stage, err error) {
	r.Lock()
	defer r.Unlock()
	r.failures[stage] = err
}

func (r *stubRunner) Run(
	ctx context.Context, entry *entrystore.Entry, stage entrystore.Stage) error {

	r.Lock()
	defer r.Unlock()
	r.runs = append(r.runs, stage)
	if err := r.failures[stage]; err != nil {
		return err
	}
	return r.entries.Checkpoint(entry, stage)
}

func (r *stubRunner) ranStages() []entrystore.Stage {
	r.Lock()
	defer r.Unlock()
	return append([]entrystore.Stage(nil), r.runs...)
}

func workerFixture(t *testing.T) (
	*Worker, *Store, *entrystore.Store, *stubRunner, *events.ChannelSink) {

	clk := clock.New()
	queue, entries, cleanup := StoreFixture(clk)
	t.Cleanup(cleanup)

	runner := newStubRunner(entries)
	sink := events.NewChannelSink(128)
	w := NewWorker(WorkerConfig{
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		RetryBackoff: backoff.Config{Min: time.Millisecond, NoJitter: true},
	}, tally.NoopScope, queue, entries, runner, sink, clk)
	t.Cleanup(w.Stop)
	return w, queue, entries, runner, sink
}

func waitForJobState(t *testing.T, queue *Store, id int64, want State) *Job {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := queue.Get(id)
		require.NoError(t, err)
		if j.State == want {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %d never reached state %s", id, want)
	return nil
}

func TestWorkerRunsAllStages(t *testing.T) {
	require := require.New(t)

	w, queue, entries, runner, sink := workerFixture(t)

	e, err := entries.Create(entrystore.PathFixture())
	require.NoError(err)
	j, err := queue.Enqueue(e.ID, PriorityNormal, time.Now())
	require.NoError(err)

	require.NoError(w.Start())
	waitForJobState(t, queue, j.ID, StateDone)

	e, err = entries.GetByID(e.ID)
	require.NoError(err)
	require.Equal(entrystore.StatusUploaded, e.Status)
	require.Equal(entrystore.Stages(), runner.ranStages())

	var kinds []events.Kind
	for len(sink.C) > 0 {
		kinds = append(kinds, (<-sink.C).Kind)
	}
	require.Contains(kinds, events.FileEntryProgressed)
	require.Contains(kinds, events.FileEntryCompleted)
}

func TestWorkerResumesFromCheckpoints(t *testing.T) {
	require := require.New(t)

	w, queue, entries, runner, _ := workerFixture(t)

	e, err := entries.Create(entrystore.PathFixture())
	require.NoError(err)
	// Entry already progressed through Generate in a previous run.
	for _, stage := range entrystore.Stages()[:6] {
		require.NoError(entries.Checkpoint(e, stage))
	}

	j, err := queue.Enqueue(e.ID, PriorityNormal, time.Now())
	require.NoError(err)

	require.NoError(w.Start())
	waitForJobState(t, queue, j.ID, StateDone)

	// Only Upload ran.
	require.Equal([]entrystore.Stage{entrystore.StageUpload}, runner.ranStages())
}

func TestWorkerRequeuesRetryableFailure(t *testing.T) {
	require := require.New(t)

	w, queue, entries, runner, _ := workerFixture(t)

	e, err := entries.Create(entrystore.PathFixture())
	require.NoError(err)
	runner.failOn(entrystore.StageAnalyze, core.Errorf(core.ErrKindNetworkTransient, "tmdb 503"))

	j, err := queue.Enqueue(e.ID, PriorityNormal, time.Now())
	require.NoError(err)

	require.NoError(w.Start())
	// Retryable failures exhaust attempts, then fail.
	waitForJobState(t, queue, j.ID, StateFailed)

	e, err = entries.GetByID(e.ID)
	require.NoError(err)
	require.Equal(entrystore.StatusFailed, e.Status)
	require.Equal(string(core.ErrKindNetworkTransient), e.ErrorKind)
	// Scan checkpoint from the first attempt is preserved.
	require.NotNil(e.ScannedAt)
	// Analyze was attempted on every job attempt, Scan only once.
	runs := runner.ranStages()
	require.Equal(entrystore.StageScan, runs[0])
	require.Equal(defaultMaxAttempts, len(runs)-1)
}

func TestWorkerFailsTerminalErrorImmediately(t *testing.T) {
	require := require.New(t)

	w, queue, entries, runner, sink := workerFixture(t)

	e, err := entries.Create(entrystore.PathFixture())
	require.NoError(err)
	runner.failOn(entrystore.StageScan, core.Errorf(core.ErrKindValidation, "file unreadable"))

	j, err := queue.Enqueue(e.ID, PriorityNormal, time.Now())
	require.NoError(err)

	require.NoError(w.Start())
	failed := waitForJobState(t, queue, j.ID, StateFailed)
	require.Equal(0, failed.Attempt)

	e, err = entries.GetByID(e.ID)
	require.NoError(err)
	require.Equal(entrystore.StatusFailed, e.Status)
	require.Equal(string(core.ErrKindValidation), e.ErrorKind)

	var sawFailed bool
	for len(sink.C) > 0 {
		if (<-sink.C).Kind == events.FileEntryFailed {
			sawFailed = true
		}
	}
	require.True(sawFailed)
}

func TestWorkerParksEntryAwaitingApproval(t *testing.T) {
	require := require.New(t)

	w, queue, entries, runner, _ := workerFixture(t)

	e, err := entries.Create(entrystore.PathFixture())
	require.NoError(err)
	runner.failOn(entrystore.StageApprove, entrystore.ErrAwaitingApproval)

	j, err := queue.Enqueue(e.ID, PriorityNormal, time.Now())
	require.NoError(err)

	require.NoError(w.Start())
	waitForJobState(t, queue, j.ID, StateDone)

	e, err = entries.GetByID(e.ID)
	require.NoError(err)
	require.Equal(entrystore.StatusAnalyzed, e.Status)
}

func TestWorkerBatchProgressEvents(t *testing.T) {
	require := require.New(t)

	w, queue, entries, _, sink := workerFixture(t)

	a, err := entries.Create(entrystore.PathFixture())
	require.NoError(err)
	b, err := entries.Create(entrystore.PathFixture())
	require.NoError(err)

	batch, err := queue.CreateBatch([]string{a.ID, b.ID}, PriorityNormal, 1)
	require.NoError(err)

	require.NoError(w.Start())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		batch, err = queue.GetBatch(batch.ID)
		require.NoError(err)
		if batch.Status == BatchCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(BatchCompleted, batch.Status)
	require.Equal(2, batch.Completed)

	var progressed bool
	for len(sink.C) > 0 {
		if (<-sink.C).Kind == events.BatchProgressed {
			progressed = true
		}
	}
	require.True(progressed)
}

func TestWorkerFailsJobForMissingEntry(t *testing.T) {
	require := require.New(t)

	w, queue, _, _, _ := workerFixture(t)

	j, err := queue.Enqueue("no-such-entry", PriorityNormal, time.Now())
	require.NoError(err)

	require.NoError(w.Start())
	waitForJobState(t, queue, j.ID, StateFailed)
}
