// Package launcher spawns worker processes and exposes non-blocking
// liveness, exit status, and forceful termination for them. The worker runs
// in its own OS process so nothing it does can stall the caller's loop.
package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/brahmanda-ai/Parishad/internal/log"
)

// maxStderrBytes caps the amount of stderr captured from worker execution.
const maxStderrBytes = 64 * 1024

// ErrSpawn marks a failure to create the worker process: missing
// entrypoint, or process creation rejected by the OS.
var ErrSpawn = errors.New("spawn worker")

// Spec describes one worker invocation. Args must already reference the
// request and result file paths; the launcher does not interpret them.
type Spec struct {
	Entrypoint string
	Args       []string
	Dir        string
	Env        []string // appended to the parent environment
}

// Handle is a live reference to a spawned worker process.
type Handle struct {
	cmd    *exec.Cmd
	done   chan struct{}
	logger *slog.Logger

	mu       sync.Mutex
	stderr   bytes.Buffer
	exitCode int
	waitErr  error
	released bool
}

// Spawn starts the worker described by spec and returns immediately. The
// child gets no visible console window on platforms that would show one.
func Spawn(spec Spec) (*Handle, error) {
	if spec.Entrypoint == "" {
		return nil, fmt.Errorf("%w: entrypoint is empty", ErrSpawn)
	}

	path, err := exec.LookPath(spec.Entrypoint)
	if err != nil {
		return nil, fmt.Errorf("%w: locate entrypoint %q: %v", ErrSpawn, spec.Entrypoint, err)
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	setSysProcAttr(cmd)

	h := &Handle{
		cmd:      cmd,
		done:     make(chan struct{}),
		logger:   log.WithComponent("launcher"),
		exitCode: -1,
	}
	cmd.Stderr = &cappedWriter{buf: &h.stderr, mu: &h.mu, limit: maxStderrBytes}

	h.logger.Debug("spawning worker", "entrypoint", path, "args", spec.Args)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start process: %v", ErrSpawn, err)
	}

	// Reap in the background so liveness checks never block. The done
	// channel closing is the single source of truth for "exited".
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		var exitErr *exec.ExitError
		if err == nil {
			h.exitCode = 0
		} else if errors.As(err, &exitErr) {
			h.exitCode = exitErr.ExitCode()
		}
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// PID returns the worker's process ID.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Alive reports whether the process is still running. Never blocks.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code once the process has terminated. The
// second return is false while the process is still running. A worker
// killed by a signal reports -1.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Stderr returns the captured (capped) stderr output so far.
func (h *Handle) Stderr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stderr.String()
}

// Terminate forcefully stops the worker: a polite termination signal first,
// then a kill after grace expires. Blocks only until the process is
// confirmed dead, which the kill guarantees. Safe to call on an
// already-exited process.
func (h *Handle) Terminate(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if err := signalTerm(h.cmd); err != nil {
		h.logger.Warn("failed to signal worker", "pid", h.PID(), "error", err)
	}

	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-h.done:
			return nil
		case <-timer.C:
		}
	}

	h.logger.Warn("worker did not exit in grace period, killing", "pid", h.PID())
	if err := kill(h.cmd); err != nil {
		// The process may have exited between the check and the kill.
		select {
		case <-h.done:
			return nil
		default:
			return fmt.Errorf("kill worker: %w", err)
		}
	}
	<-h.done
	return nil
}

// Release drops the handle's claim on the process. Idempotent. The reaper
// goroutine already waits on the child, so this only marks the handle dead
// for callers.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
}

// cappedWriter appends to buf under mu, dropping bytes past limit.
type cappedWriter struct {
	buf   *bytes.Buffer
	mu    *sync.Mutex
	limit int
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if remaining := w.limit - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
