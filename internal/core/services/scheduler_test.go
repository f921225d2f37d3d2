package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-labs/perch/internal/core/ports/driving"
)

type countingUpdater struct {
	runs int64
	err  error
}

func (u *countingUpdater) Run(_ context.Context) (*driving.UpdateStats, error) {
	atomic.AddInt64(&u.runs, 1)
	if u.err != nil {
		return nil, u.err
	}
	return &driving.UpdateStats{SourcesProcessed: 1}, nil
}

func (u *countingUpdater) count() int64 {
	return atomic.LoadInt64(&u.runs)
}

func waitForRuns(t *testing.T, u *countingUpdater, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if u.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("updater ran %d times, wanted at least %d", u.count(), want)
}

func TestSyncScheduler_RunsImmediatelyThenOnTicks(t *testing.T) {
	updater := &countingUpdater{}
	scheduler := NewSyncScheduler(updater, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- scheduler.Start(context.Background()) }()

	waitForRuns(t, updater, 3)
	scheduler.Stop()

	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, updater.count(), int64(3))
}

func TestSyncScheduler_KeepsRunningAfterFailure(t *testing.T) {
	updater := &countingUpdater{err: errors.New("backend unavailable")}
	scheduler := NewSyncScheduler(updater, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- scheduler.Start(context.Background()) }()

	// The first run fails; later ticks must still fire.
	waitForRuns(t, updater, 2)
	scheduler.Stop()

	require.NoError(t, <-done)
}

func TestSyncScheduler_StopsOnContextCancel(t *testing.T) {
	updater := &countingUpdater{}
	scheduler := NewSyncScheduler(updater, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	waitForRuns(t, updater, 1)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestSyncScheduler_StartTwiceIsNoOp(t *testing.T) {
	updater := &countingUpdater{}
	scheduler := NewSyncScheduler(updater, time.Hour)

	done := make(chan error, 1)
	go func() { done <- scheduler.Start(context.Background()) }()
	waitForRuns(t, updater, 1)

	// A second Start returns without spawning another loop.
	require.NoError(t, scheduler.Start(context.Background()))
	assert.Equal(t, int64(1), updater.count())

	scheduler.Stop()
	require.NoError(t, <-done)
}
