// Package ptyloop implements the parent side of the PTY interposer: a
// single-owner relay loop that forwards bytes between the user's real
// terminal and a pseudo-terminal master, while letting a caller observe
// every chunk through Hooks. Spawning the shell and managing raw-mode
// terminal state (Start) is kept separate from the pure relay logic
// (relay) so the loop itself can be exercised without forking a real
// shell.
package ptyloop

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

const (
	readChunkSize = 4096
	pollInterval  = 100 * time.Millisecond
)

// Hooks observes the relay loop. OnInput sees each stdin chunk before it is
// forwarded to the shell; OnOutput sees each master chunk before it is
// written to the real stdout. ShouldExit is polled after every input chunk
// is forwarded — matching the spec's exit-flagging timing — so the loop can
// end the session without waiting on the shell to exit.
type Hooks struct {
	OnInput    func(chunk []byte)
	OnOutput   func(chunk []byte)
	ShouldExit func() bool
}

// Shell resolves the shell to exec: $SHELL, defaulting to /bin/bash.
func Shell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/bash"
}

// Start spawns Shell() attached to a fresh PTY via creack/pty (the Go
// equivalent of the original's manual openpty/fork/dup2/execvp sequence),
// puts the real stdin into raw mode for the duration if it is a terminal,
// relays bytes through hooks, and restores the terminal unconditionally
// before returning — on every exit path, not just the happy one.
func Start(ctx context.Context, hooks Hooks) error {
	cmd := exec.Command(Shell())
	// TERM is set on the child's env slice only, never on the parent's
	// os.Environ() — avoids the fork/exec environment race the original
	// source was exposed to.
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("ptyloop: start pty: %w", err)
	}
	defer ptmx.Close()

	fd := int(os.Stdin.Fd())
	var oldState *term.State
	if term.IsTerminal(fd) {
		if s, rawErr := term.MakeRaw(fd); rawErr == nil {
			oldState = s
		}
	}
	defer func() {
		if oldState != nil {
			_ = term.Restore(fd, oldState)
		}
	}()

	relayErr := relay(ctx, os.Stdin, ptmx, os.Stdout, hooks)
	// Closing the master hangs up the shell's terminal, so Wait does not
	// block on a shell that is still running (e.g. after ShouldExit).
	_ = ptmx.Close()
	_ = cmd.Wait()
	return relayErr
}

type ioChunk struct {
	data []byte
	err  error
}

// relay drives the core byte-forwarding loop. It exits when either stream
// hits EOF, hooks.ShouldExit reports true, or a non-recoverable read/write
// error occurs. It never mutates shared state itself: input and output are
// each owned by exactly one goroutine (pump), and the select loop is the
// single point that touches hooks and the descriptors.
func relay(ctx context.Context, stdin io.Reader, master io.ReadWriter, stdout io.Writer, hooks Hooks) error {
	inputCh := make(chan ioChunk)
	outputCh := make(chan ioChunk)

	go pump(stdin, inputCh)
	go pump(master, outputCh)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk := <-inputCh:
			if chunk.err != nil {
				if chunk.err == io.EOF {
					return nil
				}
				return fmt.Errorf("ptyloop: read stdin: %w", chunk.err)
			}
			if hooks.OnInput != nil {
				hooks.OnInput(chunk.data)
			}
			if _, err := master.Write(chunk.data); err != nil {
				return fmt.Errorf("ptyloop: write master: %w", err)
			}
			if hooks.ShouldExit != nil && hooks.ShouldExit() {
				return nil
			}

		case chunk := <-outputCh:
			if chunk.err != nil {
				if chunk.err == io.EOF {
					return nil
				}
				return fmt.Errorf("ptyloop: read master: %w", chunk.err)
			}
			if hooks.OnOutput != nil {
				hooks.OnOutput(chunk.data)
			}
			if _, err := stdout.Write(chunk.data); err != nil {
				return fmt.Errorf("ptyloop: write stdout: %w", err)
			}

		case <-ticker.C:
			// Periodic wake-up standing in for the spec's 100ms poll
			// timeout, so a context cancellation is observed promptly
			// even when neither side has produced data.
		}
	}
}

// pump is the sole reader of r. Every successful read is copied and sent
// as its own chunk before the next Read call; the terminal error (EOF or
// otherwise) is sent once and pump returns.
func pump(r io.Reader, out chan<- ioChunk) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- ioChunk{data: data}
		}
		if err != nil {
			out <- ioChunk{err: err}
			return
		}
	}
}
