// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/workbench/lib/clock"
)

// ErrNotActive is returned by operations that need a running child
// when the transport was never started or the child has exited.
var ErrNotActive = errors.New("pty transport not active")

// State is the transport lifecycle phase.
type State int

const (
	// StateUnstarted means Start has not been called.
	StateUnstarted State = iota

	// StateRunning means the child process is attached and alive.
	StateRunning

	// StateTerminated means the caller stopped the child via Terminate.
	StateTerminated

	// StateCrashed means the child exited on its own.
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	case StateCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	readBufferSize = 4096
	controlETX     = 0x03 // Ctrl-C
	controlEOT     = 0x04 // Ctrl-D
	defaultGrace   = 3 * time.Second
)

// Transport runs a child process on a pseudo-terminal. The zero value
// is not usable; set the geometry fields (or leave them zero for the
// 120x40 default) and call Start.
type Transport struct {
	// Cols and Rows set the terminal geometry. Zero means 120x40.
	Cols uint16
	Rows uint16

	// GracePeriod bounds how long Terminate waits between SIGTERM and
	// SIGKILL. Zero means 3 seconds.
	GracePeriod time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger

	mu           sync.Mutex
	command      *exec.Cmd
	master       *os.File
	state        State
	lastActivity time.Time

	// done is closed by the monitor goroutine once Wait returns.
	done      chan struct{}
	closeOnce sync.Once
}

func (t *Transport) clock() clock.Clock {
	if t.Clock == nil {
		return clock.Real()
	}
	return t.Clock
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t *Transport) geometry() *creackpty.Winsize {
	size := &creackpty.Winsize{Cols: t.Cols, Rows: t.Rows}
	if size.Cols == 0 {
		size.Cols = 120
	}
	if size.Rows == 0 {
		size.Rows = 40
	}
	return size
}

// Start launches argv on a freshly allocated pseudo-terminal and marks
// the master descriptor non-blocking. The child becomes a session
// leader with the terminal as its controlling TTY.
func (t *Transport) Start(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("start: empty argv")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateUnstarted {
		return fmt.Errorf("start: transport already %s", t.state)
	}

	command := exec.Command(argv[0], argv[1:]...)
	master, err := creackpty.StartWithSize(command, t.geometry())
	if err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	if err := unix.SetNonblock(int(master.Fd()), true); err != nil {
		master.Close()
		command.Process.Kill()
		command.Wait()
		return fmt.Errorf("set master non-blocking: %w", err)
	}

	t.command = command
	t.master = master
	t.state = StateRunning
	t.lastActivity = t.clock().Now()
	t.done = make(chan struct{})

	go t.monitor()

	t.logger().Debug("started pty child",
		"pid", command.Process.Pid,
		"command", argv[0])
	return nil
}

// monitor owns the child's Wait call. Nothing else may call Wait.
func (t *Transport) monitor() {
	err := t.command.Wait()

	t.mu.Lock()
	if t.state == StateRunning {
		t.state = StateCrashed
		t.logger().Debug("pty child exited", "error", err)
	}
	t.mu.Unlock()
	close(t.done)
}

// Alive reports whether the child process is still running.
func (t *Transport) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateRunning
}

// State returns the current lifecycle phase.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pid returns the child process ID, or 0 before Start.
func (t *Transport) Pid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.command == nil || t.command.Process == nil {
		return 0
	}
	return t.command.Process.Pid
}

// LastActivity returns the time of the most recent read or write.
func (t *Transport) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// activeMaster returns the master descriptor if the child is running.
func (t *Transport) activeMaster() (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return nil, ErrNotActive
	}
	return t.master, nil
}

func (t *Transport) touch() {
	t.mu.Lock()
	t.lastActivity = t.clock().Now()
	t.mu.Unlock()
}

// Write sends text to the child's input.
func (t *Transport) Write(text string) error {
	master, err := t.activeMaster()
	if err != nil {
		return err
	}
	if _, err := master.WriteString(text); err != nil {
		return fmt.Errorf("write to pty: %w", err)
	}
	t.touch()
	return nil
}

// WriteLine sends text followed by a carriage return, the keystroke a
// terminal sends for Enter.
func (t *Transport) WriteLine(text string) error {
	return t.Write(text + "\r")
}

// Read performs one poll-bounded read from the master. A timeout with
// no data returns (nil, nil). Child exit surfaces as io.EOF once all
// buffered output has been drained.
func (t *Transport) Read(timeout time.Duration) ([]byte, error) {
	master, err := t.activeMaster()
	if err != nil {
		// The child may have exited with output still buffered in the
		// master; drain it even after the state flips.
		t.mu.Lock()
		master = t.master
		t.mu.Unlock()
		if master == nil {
			return nil, ErrNotActive
		}
	}
	return t.readMaster(master, timeout)
}

func (t *Transport) readMaster(master *os.File, timeout time.Duration) ([]byte, error) {
	fd := int(master.Fd())
	if fd < 0 {
		return nil, ErrNotActive
	}

	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pollFds, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("poll pty master: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		break
	}

	buffer := make([]byte, readBufferSize)
	n, err := master.Read(buffer)
	if n > 0 {
		t.touch()
		return buffer[:n], nil
	}
	if err != nil {
		// Linux reports EIO on the master once the child side is gone.
		if errors.Is(err, syscall.EIO) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, syscall.EAGAIN) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pty master: %w", err)
	}
	return nil, nil
}

// ReadStream returns a channel of output chunks. Each chunk is read
// with chunkTimeout; the stream closes once no data has arrived for
// idleTimeout, the child exits and its output is drained, or ctx is
// cancelled. The channel is owned by the stream; callers must not
// close it.
func (t *Transport) ReadStream(ctx context.Context, chunkTimeout, idleTimeout time.Duration) <-chan []byte {
	chunks := make(chan []byte)
	go func() {
		defer close(chunks)
		idleDeadline := t.clock().Now().Add(idleTimeout)
		for {
			if ctx.Err() != nil {
				return
			}
			data, err := t.Read(chunkTimeout)
			if err != nil {
				return
			}
			if len(data) > 0 {
				select {
				case chunks <- data:
				case <-ctx.Done():
					return
				}
				idleDeadline = t.clock().Now().Add(idleTimeout)
				continue
			}
			if !t.Alive() {
				// One more Read already came back empty, so the
				// buffered output is drained.
				return
			}
			if t.clock().Now().After(idleDeadline) {
				return
			}
		}
	}()
	return chunks
}

// Resize changes the terminal geometry and signals the child with
// SIGWINCH via the kernel's pty machinery.
func (t *Transport) Resize(cols, rows uint16) error {
	master, err := t.activeMaster()
	if err != nil {
		return err
	}
	size := &creackpty.Winsize{Cols: cols, Rows: rows}
	if err := creackpty.Setsize(master, size); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	t.mu.Lock()
	t.Cols, t.Rows = cols, rows
	t.mu.Unlock()
	return nil
}

// SendInterrupt delivers the interrupt keystroke (Ctrl-C) through the
// terminal, which the line discipline turns into SIGINT for the
// foreground process group.
func (t *Transport) SendInterrupt() error {
	return t.Write(string(rune(controlETX)))
}

// SendEOF delivers the end-of-input keystroke (Ctrl-D).
func (t *Transport) SendEOF() error {
	return t.Write(string(rune(controlEOT)))
}

// Terminate stops the child: SIGTERM first, SIGKILL if it has not
// exited within the grace period. Safe to call multiple times and
// after the child has already exited; the master descriptor is closed
// exactly once.
func (t *Transport) Terminate() error {
	t.mu.Lock()
	if t.state == StateUnstarted {
		t.mu.Unlock()
		return nil
	}
	if t.state != StateRunning {
		t.mu.Unlock()
		t.closeMaster()
		return nil
	}
	t.state = StateTerminated
	command := t.command
	done := t.done
	t.mu.Unlock()

	grace := t.GracePeriod
	if grace <= 0 {
		grace = defaultGrace
	}

	command.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-t.clock().After(grace):
		t.logger().Debug("pty child ignored SIGTERM, killing",
			"pid", command.Process.Pid)
		command.Process.Kill()
		<-done
	}

	t.closeMaster()
	return nil
}

func (t *Transport) closeMaster() {
	t.closeOnce.Do(func() {
		if t.master != nil {
			t.master.Close()
		}
	})
}
