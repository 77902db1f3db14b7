package protocol

import "time"

// Version is the handshake envelope version.
const Version = 1

// Request is the envelope the supervisor writes to the request file before
// the worker is spawned. Read exactly once by the worker.
type Request struct {
	Protocol    int            `json:"protocol"`
	TaskID      string         `json:"task_id"`
	Prompt      string         `json:"prompt"`
	Params      map[string]any `json:"params,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	DeadlineAt  time.Time      `json:"deadline_at"`
}

// Result is the envelope the worker writes to the result file as its last
// action before exiting. Its presence on disk is the completion signal.
type Result struct {
	Protocol int        `json:"protocol"`
	TaskID   string     `json:"task_id"`
	Status   string     `json:"status"` // ok | error
	Answer   string     `json:"answer,omitempty"`
	Error    string     `json:"error,omitempty"`
	Usage    *Usage     `json:"usage,omitempty"`
	Logs     []LogEntry `json:"logs,omitempty"`
}

// Usage carries engine accounting the worker chooses to report.
type Usage struct {
	PromptTokens     int   `json:"prompt_tokens,omitempty"`
	CompletionTokens int   `json:"completion_tokens,omitempty"`
	ElapsedMS        int64 `json:"elapsed_ms,omitempty"`
}

// LogEntry is a log message forwarded from the worker.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}

// IsError reports whether the worker returned a structured error.
func (r *Result) IsError() bool {
	return r.Status == "error"
}
