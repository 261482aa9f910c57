package debug

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })
	return logs
}

func TestLogWritesWhenEnabled(t *testing.T) {
	logs := observe(t)
	if !Enabled() {
		t.Fatal("debug-level logger should enable debug output")
	}

	Log("fetched %d records", 3)
	LogIf(false, "hidden")
	LogIf(true, "shown")
	LogTiming("analyze", 5*time.Millisecond)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "fetched 3 records" {
		t.Errorf("message = %q", entries[0].Message)
	}
	if entries[2].ContextMap()["op"] != "analyze" {
		t.Errorf("timing fields = %v", entries[2].ContextMap())
	}
}

func TestNopLoggerDisables(t *testing.T) {
	SetLogger(zap.NewNop())
	if Enabled() {
		t.Fatal("nop logger should disable debug output")
	}
	// Must not panic.
	Log("x")
	Dump("v", 1)
	LogEnterExit("f")()
}

func TestLogEnterExit(t *testing.T) {
	logs := observe(t)
	LogEnterExit("refresh")()
	entries := logs.All()
	if len(entries) != 2 || !strings.HasPrefix(entries[0].Message, "-> refresh") || !strings.HasPrefix(entries[1].Message, "<- refresh") {
		t.Errorf("entries = %+v", entries)
	}
}
