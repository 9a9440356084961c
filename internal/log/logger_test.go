package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

func TestSetup(t *testing.T) {
	// Reset logger for testing
	logger = nil
	once = *new(sync.Once)

	// Capture stdout
	// Note: since the logger writes to os.Stdout directly in Setup, we can't easily capture it
	// without replacing os.Stdout or making the writer configurable.
	// For better testability, we should probably make the writer configurable in Setup or have an internal setup.
	// However, for this simplified version, let's just test the level parsing logic by inspecting the logger.

	Setup("DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
	// We can't easily inspect the level of the default logger without using a custom handler or reflection,
	// checking if it's set is good enough for basic smoke test.
}

func TestContextHelpers(t *testing.T) {
	// We want to verify that WithComponent returns a logger that outputs the component field.
	// To do this properly, we need to be able to capture the output.
	// Let's modify the implementation slightly to allow passing a writer,
	// or we can test the `With` behavior using a buffer.

	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, nil)
	l := slog.New(h)

	// Inject this logger as the global logger for the test
	logger = l

	l2 := WithComponent("test-comp")
	l2.Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["component"] != "test-comp" {
		t.Errorf("Expected component 'test-comp', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithPipeline(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, nil)
	logger = slog.New(h)

	l2 := WithPipeline("pl-1")
	l2.Info("pipeline msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["pipeline_id"] != "pl-1" {
		t.Errorf("Expected pipeline_id 'pl-1', got %v", out["pipeline_id"])
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, nil)
	logger = slog.New(h)

	l2 := WithRun("run-123")
	l2.Info("run msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["run_id"] != "run-123" {
		t.Errorf("Expected run_id 'run-123', got %v", out["run_id"])
	}
}
