// Package classify turns raw input bytes into named KeystrokeEvents,
// reconstructs command lines, and detects paste bursts.
package classify

import (
	"fmt"
	"strings"
	"time"
)

// KeystrokeEvent is one classified input byte.
type KeystrokeEvent struct {
	Timestamp int64  `json:"timestamp"`
	KeyCode   byte   `json:"key_code"`
	KeyName   string `json:"key_name"`
	RawBytes  []byte `json:"raw_bytes"`
	IsPaste   bool   `json:"is_paste"`
}

// CommandEvent is emitted when a completed, non-empty, non-"exit" line is
// seen.
type CommandEvent struct {
	Timestamp int64  `json:"timestamp"`
	Command   string `json:"command"`
}

// Classifier holds the line-reconstruction buffer, paste detector, and
// should-exit flag across a stream of input chunks.
type Classifier struct {
	line       []byte
	shouldExit bool
	detector   pasteDetector
	now        func() time.Time
}

// New returns a Classifier with the real wall clock.
func New() *Classifier {
	return &Classifier{
		detector: newPasteDetector(),
		now:      time.Now,
	}
}

// Process classifies every byte of chunk in order, returning the resulting
// KeystrokeEvents and any CommandEvents emitted along the way. Call
// ShouldExit after each chunk to see whether the user typed a bare "exit".
func (c *Classifier) Process(chunk []byte) ([]KeystrokeEvent, []CommandEvent) {
	events := make([]KeystrokeEvent, 0, len(chunk))
	var commands []CommandEvent

	for _, b := range chunk {
		ts := c.now().UnixMilli()
		name, special := DecodeKey(b)

		switch {
		case b == '\n' || b == '\r':
			if cmd := strings.TrimSpace(string(c.line)); cmd != "" && cmd != "exit" {
				commands = append(commands, CommandEvent{Timestamp: ts, Command: cmd})
			}
			c.line = c.line[:0]
		case b == 8 || b == 127:
			if len(c.line) > 0 {
				c.line = c.line[:len(c.line)-1]
			}
		case b >= 32 && b <= 126 && !special:
			c.line = append(c.line, b)
		}

		isPaste := false
		if !special && b >= 32 && b <= 126 {
			isPaste = c.detector.observe(c.now(), 1)
		}

		events = append(events, KeystrokeEvent{
			Timestamp: ts,
			KeyCode:   b,
			KeyName:   name,
			RawBytes:  []byte{b},
			IsPaste:   isPaste,
		})
	}

	if strings.TrimSpace(string(c.line)) == "exit" {
		c.shouldExit = true
	}

	return events, commands
}

// ShouldExit reports whether, at the end of any chunk processed so far, the
// user's line buffer was exactly "exit" (after trimming). Once set, the flag
// stays set.
func (c *Classifier) ShouldExit() bool {
	return c.shouldExit
}

// DecodeKey maps a single byte to its key_name and whether it is "special"
// (non-printable / control), per the fixed classification table.
func DecodeKey(b byte) (name string, special bool) {
	switch {
	case b == 0:
		return "NULL", true
	case b >= 1 && b <= 7:
		return fmt.Sprintf("Ctrl+%c", 'A'+b-1), true
	case b == 8 || b == 127:
		return "Backspace", true
	case b == 9:
		return "Tab", true
	case b == 10 || b == 13:
		return "Enter", true
	case b == 27:
		return "ESC", true
	case b >= 32 && b <= 126:
		return string(rune(b)), false
	default:
		return fmt.Sprintf("0x%02X", b), true
	}
}
