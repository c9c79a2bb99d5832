package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebot/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reaper.db")
	st, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedCompletedTask(t *testing.T, st store.Store, taskID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateTask(ctx, &store.Task{TaskID: taskID, IssueNumber: 1, MaxRetries: 2}))
	require.NoError(t, st.UpdateStatus(ctx, taskID, store.StatusRunning, store.StatusUpdate{}))
	success := true
	require.NoError(t, st.UpdateStatus(ctx, taskID, store.StatusCompleted, store.StatusUpdate{Success: &success}))
}

// TestReaperRunOncePrunesOldTasks runs the reaper with its clock moved two
// hours ahead and a one-hour MaxAge, so the cutoff lies in the future,
// since UpdateStatus always stamps completed_at with the real current time
// and tests can't otherwise produce an aged row.
func TestReaperRunOncePrunesOldTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedCompletedTask(t, st, "old-task")
	seedCompletedTask(t, st, "new-task")

	r, err := New(Config{
		Store:    st,
		Schedule: "0 0 * * *",
		MaxAge:   time.Hour,
		NowFunc:  func() time.Time { return time.Now().Add(2 * time.Hour) },
	})
	require.NoError(t, err)

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = st.GetTask(ctx, "old-task")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReaperRunOnceKeepsRecentTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedCompletedTask(t, st, "new-task")

	r, err := New(Config{Store: st, Schedule: "0 0 * * *", MaxAge: 48 * time.Hour})
	require.NoError(t, err)

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	task, err := st.GetTask(ctx, "new-task")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, task.Status)
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	st := newTestStore(t)
	_, err := New(Config{Store: st, Schedule: "not a cron expression", MaxAge: time.Hour})
	assert.Error(t, err)
}
