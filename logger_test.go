package quarry

// logger_test.go implements tests for the diagnostic channel adapters.

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// TestLogCallbackPanic verifies that a contained callback fault is logged
// with the callback name, the fault value, and a stack.
func TestLogCallbackPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	func() {
		defer func() {
			if r := recover(); r != nil {
				logCallbackPanic(logger, "MergeOperator.FullMerge", r)
			}
		}()
		panic("boom")
	}()

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["callback"] != "MergeOperator.FullMerge" {
		t.Errorf("callback field = %v, want MergeOperator.FullMerge", fields["callback"])
	}
	if fields["panic"] != "boom" {
		t.Errorf("panic field = %v, want boom", fields["panic"])
	}
	if stack, ok := fields["stack"].(string); !ok || stack == "" {
		t.Error("stack field missing or empty")
	}
}

// TestEngineLogger verifies the engine's log lines flow through zap.
func TestEngineLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := engineLogger{s: zap.New(core).Sugar()}

	l.Infof("compaction finished in %dms", 42)
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if entries[0].Message != "compaction finished in 42ms" {
		t.Errorf("message = %q", entries[0].Message)
	}
}
