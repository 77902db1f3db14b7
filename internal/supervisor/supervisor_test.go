//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brahmanda-ai/Parishad/internal/handshake"
	"github.com/brahmanda-ai/Parishad/internal/journal"
	"github.com/brahmanda-ai/Parishad/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// workerPreamble parses the --request/--result flags the supervisor appends.
const workerPreamble = `#!/bin/sh
REQUEST=""
RESULT=""
while [ $# -gt 0 ]; do
  case "$1" in
    --request) REQUEST="$2"; shift 2;;
    --result) RESULT="$2"; shift 2;;
    *) shift;;
  esac
done
`

func writeWorker(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte(workerPreamble+body+"\n"), 0o755); err != nil {
		t.Fatalf("write worker script: %v", err)
	}
	return path
}

// okWorker writes a valid success result after delay, atomically.
func okWorker(t *testing.T, delay string) string {
	return writeWorker(t, `sleep `+delay+`
printf '%s' '{"protocol":1,"task_id":"t","status":"ok","answer":"world"}' > "$RESULT.part"
mv "$RESULT.part" "$RESULT"
exit 0`)
}

func newTestSupervisor(t *testing.T, entrypoint string, rec Recorder) *Supervisor {
	t.Helper()
	mgr, err := handshake.NewManager(filepath.Join(t.TempDir(), "hs"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return New(mgr, WorkerSpec{Entrypoint: entrypoint}, 500*time.Millisecond, rec, nil)
}

// pollUntilDone drives Poll the way a host loop would: serially, on a tick.
func pollUntilDone(t *testing.T, s *Supervisor, h *TaskHandle, within time.Duration) Outcome {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if res := s.Poll(context.Background(), h); res.Done {
			return res.Outcome
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state within %v (state %s)", h.ID(), within, h.State())
	return Outcome{}
}

func waitProcDead(t *testing.T, h *TaskHandle, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if !h.proc.Alive() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("worker process still alive")
}

func TestSubmitReturnsImmediately(t *testing.T) {
	s := newTestSupervisor(t, okWorker(t, "5"), nil)

	start := time.Now()
	h, err := s.Submit(context.Background(), Request{Prompt: "hello"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Submit() took %v, must not wait for the worker", elapsed)
	}
	if h.State() != StateRunning {
		t.Fatalf("state = %s, want running", h.State())
	}

	s.Cancel(context.Background(), h)
}

func TestSubmitValidation(t *testing.T) {
	s := newTestSupervisor(t, okWorker(t, "0"), nil)

	if _, err := s.Submit(context.Background(), Request{Prompt: "  "}, time.Second); err == nil {
		t.Fatal("Submit() with empty prompt should fail")
	}
	if _, err := s.Submit(context.Background(), Request{Prompt: "x"}, 0); err == nil {
		t.Fatal("Submit() with zero timeout should fail")
	}
}

func TestSubmitSpawnErrorLeavesNothingBehind(t *testing.T) {
	mgr, err := handshake.NewManager(filepath.Join(t.TempDir(), "hs"))
	if err != nil {
		t.Fatal(err)
	}
	s := New(mgr, WorkerSpec{Entrypoint: "/nonexistent/worker"}, time.Second, nil, nil)

	if _, err := s.Submit(context.Background(), Request{Prompt: "x"}, time.Second); err == nil {
		t.Fatal("Submit() should fail when the worker cannot be spawned")
	}

	entries, err := os.ReadDir(mgr.BaseDir())
	if err == nil && len(entries) > 0 {
		t.Fatalf("handshake base dir should be empty after spawn failure, has %d entries", len(entries))
	}
}

func TestTaskSucceeds(t *testing.T) {
	s := newTestSupervisor(t, okWorker(t, "0.2"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "hello"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	o := pollUntilDone(t, s, h, 10*time.Second)
	if o.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %s (%s), want success", o.Kind, o.Reason)
	}
	if o.Result == nil || o.Result.Answer != "world" {
		t.Fatalf("result = %+v, want answer world", o.Result)
	}
	if h.State() != StateSucceeded {
		t.Fatalf("state = %s, want succeeded", h.State())
	}

	// Poll after terminal keeps returning the same outcome
	again := s.Poll(context.Background(), h)
	if !again.Done || again.Outcome.Kind != OutcomeSuccess {
		t.Fatal("Poll() after terminal state should return the stored outcome")
	}

	if err := s.Cleanup(context.Background(), h); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
}

func TestWorkerExitsWithoutResult(t *testing.T) {
	s := newTestSupervisor(t, writeWorker(t, "exit 1"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	o := pollUntilDone(t, s, h, 10*time.Second)
	if o.Kind != OutcomeFailure {
		t.Fatalf("outcome = %s, want failure", o.Kind)
	}
	if o.FailureKind != FailureExitedWithoutResult {
		t.Fatalf("failure kind = %s, want %s", o.FailureKind, FailureExitedWithoutResult)
	}
	if !strings.Contains(o.Reason, "exit code 1") {
		t.Fatalf("reason = %q, want it to carry the exit code", o.Reason)
	}
}

func TestWorkerReportsStructuredError(t *testing.T) {
	worker := writeWorker(t, `printf '%s' '{"protocol":1,"task_id":"t","status":"error","error":"model not found"}' > "$RESULT"
exit 0`)
	s := newTestSupervisor(t, worker, nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	o := pollUntilDone(t, s, h, 10*time.Second)
	if o.Kind != OutcomeFailure || o.FailureKind != FailureWorkerError {
		t.Fatalf("outcome = %s/%s, want failure/worker_error", o.Kind, o.FailureKind)
	}
	if o.Reason != "model not found" {
		t.Fatalf("reason = %q", o.Reason)
	}
}

func TestMalformedResultAfterExit(t *testing.T) {
	worker := writeWorker(t, `printf '%s' 'this is not json' > "$RESULT"
exit 0`)
	s := newTestSupervisor(t, worker, nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	o := pollUntilDone(t, s, h, 10*time.Second)
	if o.Kind != OutcomeFailure || o.FailureKind != FailureMalformedResult {
		t.Fatalf("outcome = %s/%s, want failure/malformed_result", o.Kind, o.FailureKind)
	}
}

func TestPartialResultRetriedUntilComplete(t *testing.T) {
	// Worker stays alive; the test plays the part of a slow result flush.
	s := newTestSupervisor(t, writeWorker(t, "sleep 30"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	defer s.Cancel(context.Background(), h)

	// A truncated result observed mid-flush must not be terminal
	if err := os.WriteFile(h.hs.ResultPath, []byte(`{"protocol":1,"task_id":"t","sta`), 0o644); err != nil {
		t.Fatal(err)
	}
	if res := s.Poll(context.Background(), h); res.Done {
		t.Fatalf("Poll() on truncated result was terminal: %+v", res.Outcome)
	}

	// The completed write lands before the grace window expires
	full := `{"protocol":1,"task_id":"t","status":"ok","answer":"late"}`
	if err := os.WriteFile(h.hs.ResultPath, []byte(full), 0o644); err != nil {
		t.Fatal(err)
	}

	res := s.Poll(context.Background(), h)
	if !res.Done || res.Outcome.Kind != OutcomeSuccess {
		t.Fatalf("Poll() after complete write = %+v, want success", res)
	}
	if res.Outcome.Result.Answer != "late" {
		t.Fatalf("answer = %q", res.Outcome.Result.Answer)
	}
}

func TestPersistentlyUnparseableResultFails(t *testing.T) {
	s := newTestSupervisor(t, writeWorker(t, "sleep 30"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := os.WriteFile(h.hs.ResultPath, []byte(`{"protocol":1,"truncat`), 0o644); err != nil {
		t.Fatal(err)
	}

	// Past the grace window the failure becomes terminal
	o := pollUntilDone(t, s, h, 10*time.Second)
	if o.Kind != OutcomeFailure || o.FailureKind != FailureMalformedResult {
		t.Fatalf("outcome = %s/%s, want failure/malformed_result", o.Kind, o.FailureKind)
	}
	waitProcDead(t, h, 5*time.Second)
}

func TestTimeout(t *testing.T) {
	s := newTestSupervisor(t, writeWorker(t, "sleep 30"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	o := pollUntilDone(t, s, h, 10*time.Second)
	if o.Kind != OutcomeTimeout {
		t.Fatalf("outcome = %s (%s), want timeout", o.Kind, o.Reason)
	}
	if h.State() != StateTimedOut {
		t.Fatalf("state = %s, want timed_out", h.State())
	}
	waitProcDead(t, h, 5*time.Second)
}

func TestCancel(t *testing.T) {
	s := newTestSupervisor(t, writeWorker(t, "sleep 30"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	s.Cancel(context.Background(), h)

	if h.State() != StateCancelled {
		t.Fatalf("state = %s, want cancelled", h.State())
	}
	if _, err := os.Stat(h.hs.Dir); !os.IsNotExist(err) {
		t.Fatalf("handshake dir should be removed on cancel, stat err = %v", err)
	}

	res := s.Poll(context.Background(), h)
	if !res.Done || res.Outcome.Kind != OutcomeCancelled {
		t.Fatalf("Poll() after cancel = %+v, want cancelled", res)
	}
	waitProcDead(t, h, 5*time.Second)

	// Cancelling again is a no-op
	s.Cancel(context.Background(), h)
	if h.State() != StateCancelled {
		t.Fatal("second Cancel() changed state")
	}
}

func TestCancelNeverYieldsSuccess(t *testing.T) {
	// Worker writes a valid result almost immediately; Cancel races it.
	s := newTestSupervisor(t, okWorker(t, "0.1"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	s.Cancel(context.Background(), h)

	// Even if the result file landed before termination, polls must keep
	// reporting Cancelled.
	for i := 0; i < 10; i++ {
		res := s.Poll(context.Background(), h)
		if !res.Done || res.Outcome.Kind != OutcomeCancelled {
			t.Fatalf("Poll() after cancel = %+v", res)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestCleanupIdempotent(t *testing.T) {
	s := newTestSupervisor(t, okWorker(t, "0"), nil)

	h, err := s.Submit(context.Background(), Request{Prompt: "x"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := s.Cleanup(context.Background(), h); !errors.Is(err, ErrNotTerminal) {
		t.Fatalf("Cleanup() on running task error = %v, want ErrNotTerminal", err)
	}

	pollUntilDone(t, s, h, 10*time.Second)

	if err := s.Cleanup(context.Background(), h); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(h.hs.Dir); !os.IsNotExist(err) {
		t.Fatal("handshake dir should be removed by Cleanup")
	}
	if err := s.Cleanup(context.Background(), h); err != nil {
		t.Fatalf("second Cleanup() error = %v, want nil", err)
	}
}

func TestJournalIntegration(t *testing.T) {
	j, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	defer j.Close()

	s := newTestSupervisor(t, okWorker(t, "0.1"), j)

	h, err := s.Submit(context.Background(), Request{Prompt: "hello"}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	e, err := j.Get(context.Background(), h.ID())
	if err != nil {
		t.Fatalf("journal.Get() after submit error = %v", err)
	}
	if e.Status != journal.StatusRunning {
		t.Fatalf("journal status = %s, want running", e.Status)
	}
	if e.PromptDigest == "" {
		t.Fatal("prompt digest should be recorded")
	}

	pollUntilDone(t, s, h, 10*time.Second)

	e, err = j.Get(context.Background(), h.ID())
	if err != nil {
		t.Fatalf("journal.Get() after completion error = %v", err)
	}
	if e.Status != journal.StatusSucceeded {
		t.Fatalf("journal status = %s, want succeeded", e.Status)
	}
}
