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
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
)

func TestEnqueueIsIdempotentPerEntry(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	a, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)

	b, err := store.Enqueue("entry-1", PriorityHigh, clk.Now())
	require.NoError(err)
	require.Equal(a.ID, b.ID)
	require.Equal(PriorityNormal, b.Priority)
}

func TestClaimDispatchOrder(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	now := clk.Now()
	low, err := store.Enqueue("entry-low", PriorityLow, now)
	require.NoError(err)
	normalLate, err := store.Enqueue("entry-normal-late", PriorityNormal, now.Add(time.Second))
	require.NoError(err)
	normal, err := store.Enqueue("entry-normal", PriorityNormal, now)
	require.NoError(err)
	high, err := store.Enqueue("entry-high", PriorityHigh, now)
	require.NoError(err)

	clk.Add(2 * time.Second)

	var order []int64
	for {
		j, err := store.Claim()
		if err == ErrNoJobReady {
			break
		}
		require.NoError(err)
		order = append(order, j.ID)
	}
	require.Equal([]int64{high.ID, normal.ID, normalLate.ID, low.ID}, order)
}

func TestClaimHonorsScheduledAt(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	j, err := store.Enqueue("entry-1", PriorityNormal, clk.Now().Add(time.Minute))
	require.NoError(err)

	_, err = store.Claim()
	require.Equal(ErrNoJobReady, err)

	clk.Add(time.Minute)
	claimed, err := store.Claim()
	require.NoError(err)
	require.Equal(j.ID, claimed.ID)
	require.Equal(StateRunning, claimed.State)
	require.NotNil(claimed.StartedAt)
}

func TestClaimedJobIsNotReclaimed(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	_, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)

	_, err = store.Claim()
	require.NoError(err)

	_, err = store.Claim()
	require.Equal(ErrNoJobReady, err)
}

func TestCompleteFreesActiveSlot(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	a, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)

	claimed, err := store.Claim()
	require.NoError(err)
	require.NoError(store.Complete(claimed.ID))

	done, err := store.Get(a.ID)
	require.NoError(err)
	require.Equal(StateDone, done.State)
	require.NotNil(done.FinishedAt)

	// A new job for the same entry may now be enqueued.
	b, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)
	require.NotEqual(a.ID, b.ID)
}

func TestRequeueIncrementsAttemptAndDelays(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	_, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)
	j, err := store.Claim()
	require.NoError(err)

	state, err := store.Requeue(j.ID, 30*time.Second, "tracker 503")
	require.NoError(err)
	require.Equal(StateQueued, state)

	j, err = store.Get(j.ID)
	require.NoError(err)
	require.Equal(1, j.Attempt)
	require.Equal("tracker 503", j.LastError)

	_, err = store.Claim()
	require.Equal(ErrNoJobReady, err)

	clk.Add(30 * time.Second)
	_, err = store.Claim()
	require.NoError(err)
}

func TestRequeueExhaustedAttemptsFails(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	_, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)

	var last State
	for i := 0; i < defaultMaxAttempts; i++ {
		j, err := store.Claim()
		require.NoError(err)
		last, err = store.Requeue(j.ID, 0, "boom")
		require.NoError(err)
	}
	require.Equal(StateFailed, last)

	_, err = store.Claim()
	require.Equal(ErrNoJobReady, err)
}

func TestCancelQueuedJob(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	j, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)
	require.NoError(store.Cancel(j.ID))

	j, err = store.Get(j.ID)
	require.NoError(err)
	require.Equal(StateCancelled, j.State)

	_, err = store.Claim()
	require.Equal(ErrNoJobReady, err)
}

func TestResetOrphans(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	_, err := store.Enqueue("entry-1", PriorityNormal, clk.Now())
	require.NoError(err)
	j, err := store.Claim()
	require.NoError(err)

	// Too recent to be considered crashed.
	n, err := store.ResetOrphans(5 * time.Minute)
	require.NoError(err)
	require.Equal(0, n)

	clk.Add(6 * time.Minute)
	n, err = store.ResetOrphans(5 * time.Minute)
	require.NoError(err)
	require.Equal(1, n)

	reclaimed, err := store.Claim()
	require.NoError(err)
	require.Equal(j.ID, reclaimed.ID)
}

func TestBatchConcurrencyLimit(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	b, err := store.CreateBatch([]string{"e1", "e2", "e3"}, PriorityNormal, 2)
	require.NoError(err)
	require.Equal(3, b.Total)
	require.Equal(BatchRunning, b.Status)

	_, err = store.Claim()
	require.NoError(err)
	_, err = store.Claim()
	require.NoError(err)

	// Third job is held back by the concurrency limit.
	_, err = store.Claim()
	require.Equal(ErrNoJobReady, err)
}

func TestBatchProgressAndCompletion(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	b, err := store.CreateBatch([]string{"e1", "e2"}, PriorityNormal, 2)
	require.NoError(err)

	j1, err := store.Claim()
	require.NoError(err)
	require.NoError(store.Complete(j1.ID))
	b, err = store.BatchJobFinished(b.ID, StateDone)
	require.NoError(err)
	require.Equal(1, b.Completed)
	require.Equal(BatchRunning, b.Status)

	j2, err := store.Claim()
	require.NoError(err)
	require.NoError(store.Fail(j2.ID, "boom"))
	b, err = store.BatchJobFinished(b.ID, StateFailed)
	require.NoError(err)
	require.Equal(1, b.Failed)
	require.Equal(2, b.Done())
	require.Equal(BatchCompleted, b.Status)
}

func TestCancelBatchCancelsActiveJobs(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	store, _, cleanup := StoreFixture(clk)
	defer cleanup()

	b, err := store.CreateBatch([]string{"e1", "e2"}, PriorityNormal, 1)
	require.NoError(err)

	running, err := store.Claim()
	require.NoError(err)

	require.NoError(store.CancelBatch(b.ID))

	b, err = store.GetBatch(b.ID)
	require.NoError(err)
	require.Equal(BatchCancelled, b.Status)

	jobs, err := store.ListByBatch(b.ID)
	require.NoError(err)
	for _, j := range jobs {
		require.Equal(StateCancelled, j.State, "job %d", j.ID)
	}
	_ = running
}
