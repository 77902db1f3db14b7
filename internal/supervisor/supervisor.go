// Package supervisor owns delegated tasks from submission to a terminal
// outcome. Each task gets a fresh handshake directory and a dedicated worker
// process; completion is detected by polling, never by a blocking wait, so
// the calling loop is never stalled.
package supervisor

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/brahmanda-ai/Parishad/internal/events"
	"github.com/brahmanda-ai/Parishad/internal/handshake"
	"github.com/brahmanda-ai/Parishad/internal/journal"
	"github.com/brahmanda-ai/Parishad/internal/launcher"
	"github.com/brahmanda-ai/Parishad/internal/log"
	"github.com/brahmanda-ai/Parishad/internal/protocol"
)

// decodeGracePeriod is how long a present-but-unparseable result file is
// retried before being declared malformed, while the worker is still alive.
const decodeGracePeriod = 3 * time.Second

// ErrNotTerminal is returned by Cleanup on a task that has not reached a
// terminal state yet.
var ErrNotTerminal = errors.New("task is not in a terminal state")

// Request is one unit of delegated work.
type Request struct {
	Prompt string
	Params map[string]any
}

// WorkerSpec describes how to invoke the worker. The request and result
// file paths are appended to Args as --request/--result flags at spawn.
type WorkerSpec struct {
	Entrypoint string
	Args       []string
	Dir        string
	Env        []string
}

// Recorder is the journal surface the supervisor writes to. Satisfied by
// *journal.Journal; nil disables recording.
type Recorder interface {
	RecordSubmitted(ctx context.Context, sub journal.Submission) error
	RecordOutcome(ctx context.Context, c journal.Completion) error
}

// TaskHandle is the caller's opaque reference to one submitted task. All
// methods on it go through the Supervisor, on the host loop's thread.
type TaskHandle struct {
	id          string
	hs          handshake.Handshake
	proc        *launcher.Handle
	submittedAt time.Time
	deadline    time.Time

	state   State
	outcome Outcome

	// decodeFailSince is when a result file was first seen but failed to
	// decode; zero when no such observation is pending.
	decodeFailSince time.Time

	cleaned bool
}

// ID returns the task's unique identifier.
func (h *TaskHandle) ID() string { return h.id }

// State returns the task's current state.
func (h *TaskHandle) State() State { return h.state }

// Supervisor orchestrates task execution through handshake files and worker
// processes. Not safe for concurrent use: the host loop is expected to be
// the sole caller, which also guarantees polls never interleave.
type Supervisor struct {
	hs       *handshake.Manager
	worker   WorkerSpec
	grace    time.Duration
	recorder Recorder
	hub      *events.Hub
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Supervisor. recorder and hub may be nil.
func New(hs *handshake.Manager, worker WorkerSpec, grace time.Duration, recorder Recorder, hub *events.Hub) *Supervisor {
	return &Supervisor{
		hs:       hs,
		worker:   worker,
		grace:    grace,
		recorder: recorder,
		hub:      hub,
		logger:   log.WithComponent("supervisor"),
		now:      time.Now,
	}
}

// Submit writes the request file, spawns the worker, and returns
// immediately. It never waits for the worker; the returned handle is polled
// for completion. A spawn failure is returned directly (and leaves nothing
// behind), per the no-retry policy for SpawnError.
func (s *Supervisor) Submit(ctx context.Context, req Request, timeout time.Duration) (*TaskHandle, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("request prompt is empty")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}

	id := uuid.NewString()
	taskLogger := log.WithTask(id)
	now := s.now()

	hs, err := s.hs.Create(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create handshake directory: %w", err)
	}

	env := &protocol.Request{
		Protocol:    protocol.Version,
		TaskID:      id,
		Prompt:      req.Prompt,
		Params:      req.Params,
		SubmittedAt: now,
		DeadlineAt:  now.Add(timeout),
	}

	var buf bytes.Buffer
	if err := protocol.EncodeRequest(&buf, env); err != nil {
		_ = s.hs.Remove(ctx, id)
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if err := s.hs.WriteRequest(hs, buf.Bytes()); err != nil {
		_ = s.hs.Remove(ctx, id)
		return nil, err
	}

	spec := launcher.Spec{
		Entrypoint: s.worker.Entrypoint,
		Args: append(append([]string{}, s.worker.Args...),
			"--request", hs.RequestPath,
			"--result", hs.ResultPath,
		),
		Dir: s.worker.Dir,
		Env: s.worker.Env,
	}

	proc, err := launcher.Spawn(spec)
	if err != nil {
		_ = s.hs.Remove(ctx, id)
		return nil, err
	}

	taskLogger.Info("task submitted", "pid", proc.PID(), "timeout", timeout)

	h := &TaskHandle{
		id:          id,
		hs:          hs,
		proc:        proc,
		submittedAt: now,
		deadline:    now.Add(timeout),
		state:       StateRunning,
	}

	if s.recorder != nil {
		sub := journal.Submission{
			ID:           id,
			Prompt:       req.Prompt,
			PromptDigest: promptDigest(req.Prompt),
			SubmittedAt:  now,
		}
		if err := s.recorder.RecordSubmitted(ctx, sub); err != nil {
			taskLogger.Error("failed to journal submission", "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Publish(events.TypeTaskSubmitted, map[string]string{"task_id": id})
	}

	return h, nil
}

// Poll checks the task once, without blocking. The result file is always
// checked before process liveness: the worker writes the result as its last
// act, so a freshly-exited process may have a result that must not be
// missed.
func (s *Supervisor) Poll(ctx context.Context, h *TaskHandle) PollResult {
	if h.state.Terminal() {
		return done(h.outcome)
	}

	exists, err := h.hs.ResultExists()
	if err != nil {
		log.WithTask(h.id).Warn("result existence check failed", "error", err)
	}
	if exists {
		if res := s.pollDecode(ctx, h); res.Done {
			return res
		}
		// Result still settling; do not fall through to the liveness or
		// deadline checks while a decode retry is pending within grace.
		return pending
	}

	if !h.proc.Alive() {
		code, _ := h.proc.ExitCode()
		reason := fmt.Sprintf("worker exited without result (exit code %d)", code)
		return done(s.fail(ctx, h, FailureExitedWithoutResult, reason))
	}

	if s.now().After(h.deadline) {
		reason := fmt.Sprintf("task exceeded timeout of %s", h.deadline.Sub(h.submittedAt))
		s.terminateAsync(h)
		return done(s.finish(ctx, h, StateTimedOut, Outcome{Kind: OutcomeTimeout, Reason: reason}))
	}

	return pending
}

// pollDecode handles the result-file-present branch of Poll.
func (s *Supervisor) pollDecode(ctx context.Context, h *TaskHandle) PollResult {
	data, err := h.hs.ReadResult()
	if err != nil {
		// Treat like a transient decode failure; the file was there a
		// moment ago.
		err = fmt.Errorf("%w: %v", protocol.ErrIncomplete, err)
		return s.classifyDecodeFailure(ctx, h, err)
	}

	res, err := protocol.DecodeResult(data)
	if err != nil {
		return s.classifyDecodeFailure(ctx, h, err)
	}

	h.decodeFailSince = time.Time{}

	if res.IsError() {
		return done(s.fail(ctx, h, FailureWorkerError, res.Error))
	}

	log.WithTask(h.id).Info("task succeeded")
	return done(s.finish(ctx, h, StateSucceeded, Outcome{Kind: OutcomeSuccess, Result: res}))
}

// classifyDecodeFailure decides whether a failed decode is worth another
// poll tick. While the worker lives, every failure gets the grace window: a
// rename can land between polls. Once the worker has exited the file cannot
// change again, so the failure is final.
func (s *Supervisor) classifyDecodeFailure(ctx context.Context, h *TaskHandle, err error) PollResult {
	if !h.proc.Alive() {
		reason := fmt.Sprintf("worker produced an unreadable result: %v", err)
		return done(s.fail(ctx, h, FailureMalformedResult, reason))
	}

	if h.decodeFailSince.IsZero() {
		h.decodeFailSince = s.now()
		return pending
	}
	if s.now().Sub(h.decodeFailSince) < decodeGracePeriod {
		return pending
	}

	reason := fmt.Sprintf("result file never became parseable: %v", err)
	return done(s.fail(ctx, h, FailureMalformedResult, reason))
}

// Cancel terminates the worker if still running and transitions the task to
// Cancelled. A result file appearing concurrently is discarded, never
// decoded: the state flips before termination starts, and Poll short-circuits
// on terminal states.
func (s *Supervisor) Cancel(ctx context.Context, h *TaskHandle) {
	if h.state.Terminal() {
		return
	}

	s.finish(ctx, h, StateCancelled, Outcome{Kind: OutcomeCancelled, Reason: "cancelled by caller"})
	s.terminateAsync(h)

	// Best-effort: the directory is re-removed in Cleanup anyway.
	if err := s.hs.Remove(ctx, h.id); err != nil {
		log.WithTask(h.id).Warn("failed to remove handshake directory", "error", err)
	}
}

// Cleanup releases a terminal task's resources: handshake files and the
// process handle. Idempotent; the second call is a no-op.
func (s *Supervisor) Cleanup(ctx context.Context, h *TaskHandle) error {
	if !h.state.Terminal() {
		return ErrNotTerminal
	}
	if h.cleaned {
		return nil
	}

	if err := s.hs.Remove(ctx, h.id); err != nil {
		return err
	}
	// A worker lingering past its task's terminal state gets reaped here.
	if h.proc.Alive() {
		s.terminateAsync(h)
	}
	h.proc.Release()
	h.cleaned = true
	return nil
}

// fail transitions to Failed with the given kind. A worker still running
// after its task failed (e.g. it wrote a malformed result and kept going)
// gets terminated.
func (s *Supervisor) fail(ctx context.Context, h *TaskHandle, kind FailureKind, reason string) Outcome {
	log.WithTask(h.id).Warn("task failed", "kind", string(kind), "reason", reason)
	if h.proc.Alive() {
		s.terminateAsync(h)
	}
	return s.finish(ctx, h, StateFailed, Outcome{Kind: OutcomeFailure, FailureKind: kind, Reason: reason})
}

// finish performs the single transition out of Running and fans out to the
// journal and the event hub.
func (s *Supervisor) finish(ctx context.Context, h *TaskHandle, state State, o Outcome) Outcome {
	h.state = state
	h.outcome = o

	if s.recorder != nil {
		c := journal.Completion{
			ID:          h.id,
			Status:      journal.Status(state),
			Reason:      o.Reason,
			Stderr:      h.proc.Stderr(),
			CompletedAt: s.now(),
		}
		if err := s.recorder.RecordOutcome(ctx, c); err != nil {
			log.WithTask(h.id).Error("failed to journal outcome", "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Publish(eventTypeFor(state), map[string]string{
			"task_id": h.id,
			"reason":  o.Reason,
		})
	}

	return o
}

// terminateAsync kills the worker without blocking the caller; the grace
// wait between SIGTERM and SIGKILL happens off the host loop.
func (s *Supervisor) terminateAsync(h *TaskHandle) {
	proc := h.proc
	grace := s.grace
	go func() {
		if err := proc.Terminate(grace); err != nil {
			log.WithTask(h.id).Error("failed to terminate worker", "error", err)
		}
	}()
}

func eventTypeFor(state State) string {
	switch state {
	case StateSucceeded:
		return events.TypeTaskSucceeded
	case StateTimedOut:
		return events.TypeTaskTimedOut
	case StateCancelled:
		return events.TypeTaskCancelled
	default:
		return events.TypeTaskFailed
	}
}

func promptDigest(prompt string) string {
	sum := blake3.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
