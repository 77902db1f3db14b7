package journal

import (
	"errors"
	"time"
)

// Status mirrors the supervisor's task states as stored rows.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Entry is one task's journal row.
type Entry struct {
	ID           string
	Prompt       string
	PromptDigest string
	Status       Status
	Reason       *string
	Stderr       *string
	SubmittedAt  time.Time
	CompletedAt  *time.Time
}

// Submission records a task entering the journal.
type Submission struct {
	ID           string
	Prompt       string
	PromptDigest string
	SubmittedAt  time.Time
}

// Completion records a task reaching a terminal state.
type Completion struct {
	ID          string
	Status      Status
	Reason      string
	Stderr      string
	CompletedAt time.Time
}

var ErrEntryNotFound = errors.New("journal entry not found")
