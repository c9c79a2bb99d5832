// Package logstream implements a poll-based follower over the task log
// store, grounded on the original service's logs.py SSE generator: it
// polls for new log rows once a second, emits each as a data frame, and
// closes the stream once the task reaches a terminal status.
package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"issuebot/internal/store"
)

// PollInterval matches the original service's 1-second poll cadence.
const PollInterval = 1 * time.Second

// FrameType distinguishes the kinds of frames a Follower emits.
type FrameType string

const (
	FrameData  FrameType = "data"
	FrameDone  FrameType = "done"
	FrameError FrameType = "error"
)

// Frame is one unit of output from Follow. Log is populated for FrameData,
// Message carries a human-readable note for FrameDone/FrameError.
type Frame struct {
	Type    FrameType
	Log     *store.TaskLog
	Message string
}

// Follower streams a task's logs from a Store, starting from the
// beginning and following new lines until the task completes or the
// caller's context is cancelled.
type Follower struct {
	Store        store.Store
	PollInterval time.Duration
}

// New returns a Follower with the default poll interval.
func New(st store.Store) *Follower {
	return &Follower{Store: st, PollInterval: PollInterval}
}

func (f *Follower) interval() time.Duration {
	if f.PollInterval > 0 {
		return f.PollInterval
	}
	return PollInterval
}

// Follow sends Frame values to out until the task reaches a terminal
// status, the task disappears, or ctx is cancelled. It always closes out
// before returning, so callers should range over out rather than select
// on ctx.Done() again.
func (f *Follower) Follow(ctx context.Context, taskID string, out chan<- Frame) {
	defer close(out)

	var lastID int64
	ticker := time.NewTicker(f.interval())
	defer ticker.Stop()

	emit := func() (done bool) {
		logs, err := f.Store.GetLogs(ctx, taskID, lastID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return f.send(ctx, out, Frame{Type: FrameError, Message: "task not found"})
			}
			return f.send(ctx, out, Frame{Type: FrameError, Message: err.Error()})
		}
		for _, l := range logs {
			if f.send(ctx, out, Frame{Type: FrameData, Log: l}) {
				return true
			}
			lastID = l.ID
		}

		task, err := f.Store.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return f.send(ctx, out, Frame{Type: FrameError, Message: "task not found"})
			}
			return f.send(ctx, out, Frame{Type: FrameError, Message: err.Error()})
		}
		switch task.Status {
		case store.StatusCompleted, store.StatusFailed, store.StatusCancelled:
			return f.send(ctx, out, Frame{Type: FrameDone, Message: "task finished"})
		}
		return false
	}

	if emit() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if emit() {
				return
			}
		}
	}
}

// send writes a frame, returning true if the stream should stop (either
// because the frame was terminal or the context was cancelled first).
func (f *Follower) send(ctx context.Context, out chan<- Frame, fr Frame) bool {
	select {
	case out <- fr:
	case <-ctx.Done():
		return true
	}
	return fr.Type == FrameDone || fr.Type == FrameError
}

// MarshalSSE renders a Frame as a Server-Sent Events wire message.
func MarshalSSE(fr Frame) ([]byte, error) {
	var payload any
	switch fr.Type {
	case FrameData:
		payload = fr.Log
	default:
		payload = map[string]string{"message": fr.Message}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	buf := append([]byte("event: "+string(fr.Type)+"\ndata: "), data...)
	buf = append(buf, '\n', '\n')
	return buf, nil
}
