package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRegistry_PrunesFinishedTasks(t *testing.T) {
	r := NewTaskRegistry()
	r.Go("ok", 0, func(ctx context.Context) error { return nil })
	r.Go("fails", 0, func(ctx context.Context) error { return errors.New("boom") })
	r.Go("panics", 0, func(ctx context.Context) error { panic("bad state") })

	require.NoError(t, r.Drain(context.Background()))

	snap := r.Snapshot()
	assert.Empty(t, snap.Running)
	assert.Equal(t, int64(3), snap.Completed)
	require.Len(t, snap.Failed, 2)

	errs := []string{snap.Failed[0].Error, snap.Failed[1].Error}
	assert.Contains(t, errs, "boom")
	assert.Contains(t, errs, "panic: bad state")
}

func TestTaskRegistry_SnapshotShowsRunning(t *testing.T) {
	r := NewTaskRegistry()
	release := make(chan struct{})
	id := r.Go("slow", 0, func(ctx context.Context) error {
		<-release
		return nil
	})

	snap := r.Snapshot()
	require.Len(t, snap.Running, 1)
	assert.Equal(t, id, snap.Running[0].ID)
	assert.Equal(t, "slow", snap.Running[0].Name)

	close(release)
	require.NoError(t, r.Drain(context.Background()))
	assert.Empty(t, r.Snapshot().Running)
}

func TestTaskRegistry_TaskTimeout(t *testing.T) {
	r := NewTaskRegistry()
	r.Go("bounded", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, r.Drain(context.Background()))
	snap := r.Snapshot()
	require.Len(t, snap.Failed, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), snap.Failed[0].Error)
}

func TestTaskRegistry_DrainCancelsOnDeadline(t *testing.T) {
	r := NewTaskRegistry()
	cancelled := make(chan struct{})
	r.Go("stuck", 0, func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Drain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
}
