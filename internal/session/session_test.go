package session

import (
	"context"
	"testing"
	"time"

	"github.com/azmarif/examguard/internal/classify"
	"github.com/azmarif/examguard/internal/ptyloop"
)

func TestComputeSummaryCountsAllFields(t *testing.T) {
	events := []classify.KeystrokeEvent{
		{KeyName: "l"},
		{KeyName: "s"},
		{KeyName: "Enter"},
		{KeyName: "Backspace"},
		{KeyName: "a", IsPaste: true, RawBytes: []byte{'a'}},
	}
	commands := []classify.CommandEvent{{Command: "ls"}}

	s := ComputeSummary(events, commands)
	if s.TotalKeystrokes != 5 {
		t.Fatalf("expected 5 keystrokes, got %d", s.TotalKeystrokes)
	}
	if s.EnterCount != 1 || s.BackspaceCount != 1 {
		t.Fatalf("expected 1 enter / 1 backspace, got %d/%d", s.EnterCount, s.BackspaceCount)
	}
	if s.PasteEvents != 1 || s.TotalPastedChars != 1 {
		t.Fatalf("expected 1 paste event of 1 char, got %d/%d", s.PasteEvents, s.TotalPastedChars)
	}
	if s.CommandsExecuted != 1 {
		t.Fatalf("expected 1 command, got %d", s.CommandsExecuted)
	}
}

func TestMetadataFinalizeComputesDuration(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewMetadata("alice", "host-a", "deadbeef", 3, start)
	m.Finalize(time.Unix(1042, 0))
	if m.EndTime == nil || *m.EndTime != 1042 {
		t.Fatalf("expected end_time=1042, got %v", m.EndTime)
	}
	if m.DurationSeconds == nil || *m.DurationSeconds != 42 {
		t.Fatalf("expected duration_seconds=42, got %v", m.DurationSeconds)
	}
}

func TestRecorderRunAssemblesResultFromLoop(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, "alice", "host-a", "deadbeef")
	r.now = func() time.Time { return time.Unix(5000, 0) }
	r.startLoop = func(ctx context.Context, hooks ptyloop.Hooks) error {
		hooks.OnInput([]byte("ls\n"))
		hooks.OnOutput([]byte("total 0\n"))
		if !hooks.ShouldExit() {
			hooks.OnInput([]byte("exit\n"))
		}
		return nil
	}

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Metadata.RunCounter != 1 {
		t.Fatalf("expected first run to have run_counter=1, got %d", result.Metadata.RunCounter)
	}
	if result.Metadata.EndTime == nil {
		t.Fatal("expected metadata to be finalized")
	}
	if len(result.Commands) != 1 || result.Commands[0].Command != "ls" {
		t.Fatalf("expected one command 'ls', got %v", result.Commands)
	}
	if string(result.TerminalOutput) != "total 0\n" {
		t.Fatalf("expected terminal output buffered, got %q", result.TerminalOutput)
	}
	if result.Summary.TotalKeystrokes != len(result.Events) {
		t.Fatalf("summary keystroke count mismatch: %d vs %d", result.Summary.TotalKeystrokes, len(result.Events))
	}

	// A second run against the same state dir must see the counter advance.
	r2 := NewRecorder(dir, "alice", "host-a", "deadbeef")
	r2.startLoop = func(ctx context.Context, hooks ptyloop.Hooks) error { return nil }
	result2, err := r2.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result2.Metadata.RunCounter != 2 {
		t.Fatalf("expected second run to have run_counter=2, got %d", result2.Metadata.RunCounter)
	}
}
