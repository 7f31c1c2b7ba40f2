// Package session ties the counter, PTY interposer, and event classifier
// together for one recording run, and computes the derived summary that
// both the artifact and the viewer rely on.
package session

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/azmarif/examguard/internal/classify"
	"github.com/azmarif/examguard/internal/counter"
	"github.com/azmarif/examguard/internal/ptyloop"
)

// Metadata describes one recording session.
type Metadata struct {
	Username        string `json:"username"`
	Hostname        string `json:"hostname"`
	MachineID       string `json:"machine_id"`
	RunCounter      uint64 `json:"run_counter"`
	StartTime       int64  `json:"start_time"`
	EndTime         *int64 `json:"end_time,omitempty"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
}

// NewMetadata constructs Metadata at session start; EndTime and
// DurationSeconds are filled in later by Finalize.
func NewMetadata(username, hostname, machineID string, runCounter uint64, start time.Time) *Metadata {
	return &Metadata{
		Username:   username,
		Hostname:   hostname,
		MachineID:  machineID,
		RunCounter: runCounter,
		StartTime:  start.Unix(),
	}
}

// Finalize stamps end time and duration, computed from the session's
// recorded start time.
func (m *Metadata) Finalize(end time.Time) {
	e := end.Unix()
	m.EndTime = &e
	d := e - m.StartTime
	m.DurationSeconds = &d
}

// Summary is the derived view over a session's keystroke/command vectors.
type Summary struct {
	TotalKeystrokes  int `json:"total_keystrokes"`
	EnterCount       int `json:"enter_count"`
	BackspaceCount   int `json:"backspace_count"`
	PasteEvents      int `json:"paste_events"`
	TotalPastedChars int `json:"total_pasted_chars"`
	CommandsExecuted int `json:"commands_executed"`
}

// ComputeSummary derives counts from the full keystroke and command
// vectors of a session. TotalPastedChars sums raw_bytes only of events
// flagged is_paste — faithfully preserving the classifier's known
// undercount rather than approximating burst size.
func ComputeSummary(events []classify.KeystrokeEvent, commands []classify.CommandEvent) Summary {
	var s Summary
	s.TotalKeystrokes = len(events)
	s.CommandsExecuted = len(commands)
	for _, e := range events {
		switch e.KeyName {
		case "Enter":
			s.EnterCount++
		case "Backspace":
			s.BackspaceCount++
		}
		if e.IsPaste {
			s.PasteEvents++
			s.TotalPastedChars += len(e.RawBytes)
		}
	}
	return s
}

// Result bundles everything an Artifact Packager needs for one session.
type Result struct {
	Metadata       *Metadata
	Summary        Summary
	Events         []classify.KeystrokeEvent
	Commands       []classify.CommandEvent
	TerminalOutput []byte
	Counter        *counter.SessionCounter
}

// Recorder orchestrates one recording run: increment the counter, spawn
// and drive the PTY loop, classify every byte, and assemble a Result ready
// for packaging.
type Recorder struct {
	Username  string
	Hostname  string
	MachineID string

	counterStore *counter.Store
	startLoop    func(ctx context.Context, hooks ptyloop.Hooks) error
	now          func() time.Time
}

// NewRecorder returns a Recorder that persists its counter under stateDir.
func NewRecorder(stateDir, username, hostname, machineID string) *Recorder {
	return &Recorder{
		Username:     username,
		Hostname:     hostname,
		MachineID:    machineID,
		counterStore: counter.NewStore(stateDir, hostname, username),
		startLoop:    ptyloop.Start,
		now:          time.Now,
	}
}

// Run increments and persists the session counter, then drives the PTY
// loop to completion, classifying every input byte and buffering every
// output byte, and returns the assembled Result.
func (r *Recorder) Run(ctx context.Context) (*Result, error) {
	sc, err := r.counterStore.Load()
	if err != nil {
		return nil, fmt.Errorf("session: load counter: %w", err)
	}
	start := r.now()
	sc.Increment(start)
	if err := r.counterStore.Save(sc); err != nil {
		return nil, fmt.Errorf("session: save counter: %w", err)
	}

	meta := NewMetadata(r.Username, r.Hostname, r.MachineID, sc.RunCounter, start)

	classifier := classify.New()
	var events []classify.KeystrokeEvent
	var commands []classify.CommandEvent
	var output bytes.Buffer

	hooks := ptyloop.Hooks{
		OnInput: func(chunk []byte) {
			ev, cmd := classifier.Process(chunk)
			events = append(events, ev...)
			commands = append(commands, cmd...)
		},
		OnOutput: func(chunk []byte) {
			output.Write(chunk)
		},
		ShouldExit: classifier.ShouldExit,
	}

	if err := r.startLoop(ctx, hooks); err != nil {
		return nil, fmt.Errorf("session: pty loop: %w", err)
	}

	meta.Finalize(r.now())
	summary := ComputeSummary(events, commands)

	return &Result{
		Metadata:       meta,
		Summary:        summary,
		Events:         events,
		Commands:       commands,
		TerminalOutput: output.Bytes(),
		Counter:        sc,
	}, nil
}
