package supervisor

import "github.com/brahmanda-ai/Parishad/internal/protocol"

// State is a task's position in its lifecycle. Running is entered only via
// Submit; every other state is terminal.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s != StateRunning
}

// OutcomeKind tags the terminal result delivered to the caller.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailure   OutcomeKind = "failure"
	OutcomeTimeout   OutcomeKind = "timeout"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// FailureKind distinguishes why a task failed.
type FailureKind string

const (
	// FailureWorkerError: the worker reported a structured error result.
	FailureWorkerError FailureKind = "worker_error"
	// FailureMalformedResult: a result file appeared but never parsed.
	FailureMalformedResult FailureKind = "malformed_result"
	// FailureExitedWithoutResult: the process ended and no result file
	// ever appeared.
	FailureExitedWithoutResult FailureKind = "worker_exited_without_result"
)

// Outcome is the immutable terminal result of a task, handed to the caller
// exactly once.
type Outcome struct {
	Kind        OutcomeKind
	Result      *protocol.Result // set for Success
	FailureKind FailureKind      // set for Failure
	Reason      string           // human-readable, set for everything but Success
}

// PollResult is what one poll tick observes: still pending, or done with an
// outcome.
type PollResult struct {
	Done    bool
	Outcome Outcome
}

var pending = PollResult{}

func done(o Outcome) PollResult {
	return PollResult{Done: true, Outcome: o}
}
