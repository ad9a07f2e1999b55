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
	"errors"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"

	"github.com/seedarr/seedarr/core"
	"github.com/seedarr/seedarr/lib/entrystore"
	"github.com/seedarr/seedarr/lib/events"
	"github.com/seedarr/seedarr/utils/backoff"
	"github.com/seedarr/seedarr/utils/log"
)

// StageRunner executes one pipeline stage against an entry. A successful run
// commits the stage checkpoint before returning.
type StageRunner interface {
	Run(ctx context.Context, entry *entrystore.Entry, stage entrystore.Stage) error
}

// WorkerConfig defines Worker configuration.
type WorkerConfig struct {
	// Number of distinct entries which may be in stages simultaneously.
	// Per-entry execution is always serial.
	Concurrency int `yaml:"concurrency"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	CrashGracePeriod time.Duration `yaml:"crash_grace_period"`

	RetryBackoff backoff.Config `yaml:"retry_backoff"`
}

func (c WorkerConfig) applyDefaults() WorkerConfig {
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.CrashGracePeriod == 0 {
		c.CrashGracePeriod = 5 * time.Minute
	}
	if c.RetryBackoff.Max == 0 {
		c.RetryBackoff.Max = 5 * time.Minute
	}
	return c
}

// Worker drives queued jobs through the pipeline: claim, run remaining
// stages within the same claim, then complete or reschedule.
type Worker struct {
	config  WorkerConfig
	stats   tally.Scope
	queue   *Store
	entries *entrystore.Store
	runner  StageRunner
	sink    events.Sink
	clk     clock.Clock
	backoff *backoff.Backoff

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// ErrWorkerClosed is returned when Start is called on a stopped worker.
var ErrWorkerClosed = errors.New("worker closed")

// NewWorker creates a new Worker.
func NewWorker(
	config WorkerConfig,
	stats tally.Scope,
	queue *Store,
	entries *entrystore.Store,
	runner StageRunner,
	sink events.Sink,
	clk clock.Clock) *Worker {

	config = config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config:  config,
		stats:   stats.Tagged(map[string]string{"module": "jobqueue"}),
		queue:   queue,
		entries: entries,
		runner:  runner,
		sink:    sink,
		clk:     clk,
		backoff: backoff.New(config.RetryBackoff),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start recovers orphaned jobs and launches worker loops.
func (w *Worker) Start() error {
	if w.closed.Load() {
		return ErrWorkerClosed
	}
	n, err := w.queue.ResetOrphans(w.config.CrashGracePeriod)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Infof("Requeued %d jobs orphaned by previous run", n)
	}
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop()
	}
	return nil
}

// Stop halts the worker. In-flight jobs stop at their next suspension point
// and remain RUNNING; crash recovery requeues them on next start.
func (w *Worker) Stop() {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.done)
		w.cancel()
		w.wg.Wait()
	})
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		default:
		}
		j, err := w.queue.Claim()
		if err != nil {
			if err != ErrNoJobReady {
				w.stats.Counter("claim_failures").Inc(1)
				log.Errorf("Error claiming job: %s", err)
			}
			select {
			case <-w.done:
				return
			case <-w.clk.After(w.config.PollInterval):
			}
			continue
		}
		w.process(j)
	}
}

// process runs every remaining stage of the job's entry under a single
// claim. Cancellation is checked at stage boundaries.
func (w *Worker) process(j *Job) {
	entry, err := w.entries.GetByID(j.FileEntryID)
	if err != nil {
		w.fail(j, nil, core.NewError(core.ErrKindInternalInvariant, err))
		return
	}

	for {
		if w.jobCancelled(j) {
			w.cancelled(j, entry)
			return
		}
		stage, ok := entry.NextStage()
		if !ok {
			break
		}
		if err := w.runner.Run(w.ctx, entry, stage); err != nil {
			switch {
			case errors.Is(err, entrystore.ErrAwaitingApproval):
				// Park the entry; a fresh job is enqueued on approval.
				if err := w.queue.Complete(j.ID); err != nil {
					log.With("job", j).Errorf("Error completing job: %s", err)
				}
				return
			case errors.Is(err, context.Canceled):
				// Shutdown; leave the job RUNNING for crash recovery.
				return
			case core.IsRetryable(err):
				w.requeue(j, entry, err)
				return
			default:
				w.fail(j, entry, err)
				return
			}
		}
		w.stats.Tagged(map[string]string{"stage": string(stage)}).
			Counter("stages_completed").Inc(1)
		w.publish(events.Event{
			Kind:        events.FileEntryProgressed,
			FileEntryID: entry.ID,
			ReleaseName: entry.ReleaseName,
			Stage:       string(stage),
		})
	}

	if err := w.queue.Complete(j.ID); err != nil {
		log.With("job", j).Errorf("Error completing job: %s", err)
	}
	w.stats.Counter("jobs_completed").Inc(1)
	w.publish(events.Event{
		Kind:        events.FileEntryCompleted,
		FileEntryID: entry.ID,
		ReleaseName: entry.ReleaseName,
	})
	w.batchFinished(j, StateDone)
}

func (w *Worker) requeue(j *Job, entry *entrystore.Entry, stageErr error) {
	delay := w.backoff.Duration(j.Attempt)
	state, err := w.queue.Requeue(j.ID, delay, stageErr.Error())
	if err != nil {
		log.With("job", j).Errorf("Error requeueing job: %s", err)
		return
	}
	if state == StateFailed {
		// Attempts exhausted; the retryable error is now terminal.
		w.entryFailed(j, entry, stageErr)
		return
	}
	w.stats.Counter("jobs_requeued").Inc(1)
	log.With("job", j, "delay", delay).Infof("Requeued job after retryable error: %s", stageErr)
}

func (w *Worker) fail(j *Job, entry *entrystore.Entry, stageErr error) {
	if err := w.queue.Fail(j.ID, stageErr.Error()); err != nil {
		log.With("job", j).Errorf("Error failing job: %s", err)
	}
	w.entryFailed(j, entry, stageErr)
}

func (w *Worker) entryFailed(j *Job, entry *entrystore.Entry, stageErr error) {
	w.stats.Counter("jobs_failed").Inc(1)
	if entry != nil {
		kind := core.KindOf(stageErr)
		if err := w.entries.MarkFailed(entry.ID, string(kind), stageErr.Error()); err != nil {
			log.With("entry", entry.ID).Errorf("Error marking entry failed: %s", err)
		}
		w.publish(events.Event{
			Kind:        events.FileEntryFailed,
			FileEntryID: entry.ID,
			ReleaseName: entry.ReleaseName,
			Error:       stageErr.Error(),
		})
	}
	w.batchFinished(j, StateFailed)
}

// jobCancelled re-reads the job row; external cancellation flips the state
// away from RUNNING between stages.
func (w *Worker) jobCancelled(j *Job) bool {
	fresh, err := w.queue.Get(j.ID)
	if err != nil {
		log.With("job", j).Errorf("Error refreshing job: %s", err)
		return false
	}
	return fresh.State == StateCancelled
}

func (w *Worker) cancelled(j *Job, entry *entrystore.Entry) {
	w.stats.Counter("jobs_cancelled").Inc(1)
	// Completed stages are salvageable; only entries with no progress are
	// marked CANCELLED.
	if entry.CheckpointAt(entrystore.StageScan) == nil {
		if err := w.entries.MarkCancelled(entry.ID); err != nil {
			log.With("entry", entry.ID).Errorf("Error marking entry cancelled: %s", err)
		}
	}
	w.batchFinished(j, StateCancelled)
}

func (w *Worker) batchFinished(j *Job, state State) {
	if j.BatchID == "" {
		return
	}
	b, err := w.queue.BatchJobFinished(j.BatchID, state)
	if err != nil {
		log.With("batch", j.BatchID).Errorf("Error recording batch progress: %s", err)
		return
	}
	w.publish(events.Event{
		Kind:      events.BatchProgressed,
		BatchID:   b.ID,
		Completed: b.Completed,
		Failed:    b.Failed,
		Cancelled: b.Cancelled,
		Total:     b.Total,
	})
}

func (w *Worker) publish(e events.Event) {
	e.EmittedAt = w.clk.Now()
	w.sink.Publish(e)
}
