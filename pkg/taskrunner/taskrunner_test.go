package taskrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, r *TaskRunner, id uuid.UUID, want TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := r.Get(id)
		require.NoError(t, err)
		if task.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := r.Get(id)
	t.Fatalf("task did not reach status %s, last status: %s", want, task.Status)
}

func TestSubmitAndComplete(t *testing.T) {
	r := New(Config{MaxTasks: 2})

	done := make(chan struct{})
	id, err := r.Submit(context.Background(), "ok_task", func(ctx context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	<-done
	waitForStatus(t, r, id, TaskStatusCompleted)
}

func TestFailedTaskKeepsError(t *testing.T) {
	r := New(Config{MaxTasks: 2})

	taskErr := errors.New("boom")
	id, err := r.Submit(context.Background(), "failing_task", func(ctx context.Context) error {
		return taskErr
	})
	require.NoError(t, err)

	waitForStatus(t, r, id, TaskStatusFailed)
	task, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, taskErr, task.Err)
}

func TestCapacityBound(t *testing.T) {
	r := New(Config{MaxTasks: 1})

	release := make(chan struct{})
	_, err := r.Submit(context.Background(), "blocker", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), "rejected", func(ctx context.Context) error {
		return nil
	})
	assert.True(t, errors.Is(err, ErrTooManyTasks))

	close(release)
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestTaskOutlivesRequestContext(t *testing.T) {
	r := New(Config{MaxTasks: 2})

	reqCtx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	finished := make(chan error, 1)

	id, err := r.Submit(reqCtx, "detached_task", func(ctx context.Context) error {
		close(started)
		// Контекст запроса уже отменён, контекст задачи — нет.
		select {
		case <-ctx.Done():
			finished <- ctx.Err()
		case <-time.After(50 * time.Millisecond):
			finished <- nil
		}
		return nil
	})
	require.NoError(t, err)

	<-started
	cancel() // завершаем "запрос"

	require.NoError(t, <-finished, "task context must not inherit request cancellation")
	waitForStatus(t, r, id, TaskStatusCompleted)
}

func TestShutdownCancelsRunningTasks(t *testing.T) {
	r := New(Config{MaxTasks: 2})

	started := make(chan struct{})
	_, err := r.Submit(context.Background(), "long_task", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(shutdownCtx))

	_, err = r.Submit(context.Background(), "after_shutdown", func(ctx context.Context) error {
		return nil
	})
	assert.Error(t, err)
}

func TestCleanupTasks(t *testing.T) {
	r := New(Config{MaxTasks: 2})

	id, err := r.Submit(context.Background(), "short_task", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	waitForStatus(t, r, id, TaskStatusCompleted)

	r.CleanupTasks(0)

	_, err = r.Get(id)
	assert.Error(t, err, "completed task older than age must be removed")
}
