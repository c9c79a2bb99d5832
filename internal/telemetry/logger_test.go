package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitLogger(t *testing.T) {
	t.Run("Default level is info", func(t *testing.T) {
		InitLogger(false, "")
		if !slog.Default().Enabled(context.Background(), slog.LevelInfo) {
			t.Error("expected info level to be enabled by default")
		}
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			t.Error("expected debug level to be disabled by default")
		}
	})

	t.Run("Debug enables debug level", func(t *testing.T) {
		InitLogger(true, "")
		if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			t.Error("expected debug level to be enabled")
		}
	})

	t.Run("File logging writes through the rotator", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "test.log")

		InitLogger(false, logFile)
		slog.Info("test file log")

		data, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "test file log") {
			t.Errorf("expected log file to contain message, got %q", string(data))
		}
	})
}

func TestMultiHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewJSONHandler(&buf1, nil)
	h2 := slog.NewJSONHandler(&buf2, nil)

	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	t.Run("Enabled", func(t *testing.T) {
		if !mh.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("expected Enabled to return true")
		}
	})

	t.Run("Handle", func(t *testing.T) {
		record := slog.NewRecord(time.Now(), slog.LevelInfo, "test msg", 0)
		if err := mh.Handle(context.Background(), record); err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
		if !strings.Contains(buf1.String(), "test msg") {
			t.Error("buffer 1 missing message")
		}
		if !strings.Contains(buf2.String(), "test msg") {
			t.Error("buffer 2 missing message")
		}
	})

	t.Run("WithAttrs", func(t *testing.T) {
		mh2 := mh.WithAttrs([]slog.Attr{slog.String("key", "val")})
		if _, ok := mh2.(*multiHandler); !ok {
			t.Error("expected WithAttrs to return *multiHandler")
		}
	})

	t.Run("WithGroup", func(t *testing.T) {
		mh2 := mh.WithGroup("group")
		if _, ok := mh2.(*multiHandler); !ok {
			t.Error("expected WithGroup to return *multiHandler")
		}
	})

	t.Run("Enabled false when every handler is above the level", func(t *testing.T) {
		hErr := slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError})
		mhErr := &multiHandler{handlers: []slog.Handler{hErr}}
		if mhErr.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("expected Enabled to return false for Info level when handler is Error level")
		}
	})
}

func TestLogInfof(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	LogInfof("Hello %s", "World")

	if !strings.Contains(buf.String(), "Hello World") {
		t.Errorf("expected formatted message, got %s", buf.String())
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	LogError("something failed", errors.New("my error"), "foo", "bar")

	output := buf.String()
	if !strings.Contains(output, "my error") {
		t.Errorf("expected error message in log, got %s", output)
	}
	if !strings.Contains(output, `"foo":"bar"`) {
		t.Errorf("expected context in log, got %s", output)
	}
	if !strings.Contains(output, `"msg":"something failed"`) {
		t.Errorf("expected msg in log, got %s", output)
	}
}

func TestLogDebugIncludesLevel(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	LogDebug("debug message", "task_id", "t1")

	var logMap map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logMap); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if level, _ := logMap["level"].(string); level != "DEBUG" {
		t.Errorf("expected level DEBUG, got %q", level)
	}
}
