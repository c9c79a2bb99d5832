package procsup

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSleeper(t *testing.T, seconds string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", seconds)
	require.NoError(t, cmd.Start())
	return cmd
}

// registerWithOwner mimics agentrun.execute's usage: Register the process,
// then hand its single permitted Wait() call to a goroutine that closes the
// returned channel once Wait returns, exactly as the contract requires.
func registerWithOwner(s *Supervisor, taskID string, cmd *exec.Cmd) {
	done := s.Register(taskID, cmd)
	go func() {
		cmd.Wait()
		close(done)
	}()
}

func TestRegisterIsRunningTerminate(t *testing.T) {
	s := New()
	cmd := startSleeper(t, "5")
	registerWithOwner(s, "task-1", cmd)

	assert.True(t, s.IsRunning("task-1"))

	ok, err := s.Terminate(context.Background(), "task-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, s.IsRunning("task-1"))
}

func TestTerminateIdempotent(t *testing.T) {
	s := New()
	cmd := startSleeper(t, "5")
	registerWithOwner(s, "task-2", cmd)

	ok1, err1 := s.Terminate(context.Background(), "task-2")
	require.NoError(t, err1)
	assert.True(t, ok1)

	ok2, err2 := s.Terminate(context.Background(), "task-2")
	require.NoError(t, err2)
	assert.False(t, ok2)
}

func TestTerminateUntrackedIsNoop(t *testing.T) {
	s := New()
	ok, err := s.Terminate(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsRunningPrunesExitedProcess(t *testing.T) {
	s := New()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	done := s.Register("task-3", cmd)
	close(done)
	assert.False(t, s.IsRunning("task-3"))
}

func TestTerminateAll(t *testing.T) {
	s := New()
	registerWithOwner(s, "a", startSleeper(t, "5"))
	registerWithOwner(s, "b", startSleeper(t, "5"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.TerminateAll(ctx)

	assert.Empty(t, s.RunningTaskIDs())
}
