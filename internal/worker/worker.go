// Package worker is the body of `parishad worker run`: the process spawned
// by the supervisor for each task. It reads the request file, runs the
// configured engine command, and writes the result file as its last action
// before exiting. On internal failure it still writes a structured error
// result so the supervisor can report a reason instead of a bare
// exited-without-result.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/brahmanda-ai/Parishad/internal/handshake"
	"github.com/brahmanda-ai/Parishad/internal/log"
	"github.com/brahmanda-ai/Parishad/internal/protocol"
)

// maxEngineStderr caps how much engine stderr is forwarded in result logs.
const maxEngineStderr = 8 * 1024

// Options configures one worker invocation.
type Options struct {
	RequestPath string
	ResultPath  string

	// Engine is the command producing the answer: prompt on stdin, answer
	// on stdout. Empty selects the builtin echo engine (dev default).
	Engine     string
	EngineArgs []string
}

// Run executes the worker contract. The returned error is non-nil whenever
// the task did not produce an ok result; a result file has still been
// written in every case except a result-write failure itself.
func Run(ctx context.Context, opts Options) error {
	logger := log.WithComponent("worker")

	if opts.RequestPath == "" || opts.ResultPath == "" {
		return fmt.Errorf("request and result paths are required")
	}

	f, err := os.Open(opts.RequestPath)
	if err != nil {
		werr := fmt.Errorf("open request file: %w", err)
		return writeError(opts.ResultPath, "", werr)
	}
	req, err := protocol.DecodeRequest(f)
	_ = f.Close()
	if err != nil {
		return writeError(opts.ResultPath, "", err)
	}

	logger = log.WithTask(req.TaskID)
	logger.Info("request accepted", "prompt_len", len(req.Prompt))

	if !req.DeadlineAt.IsZero() {
		remaining := time.Until(req.DeadlineAt)
		if remaining <= 0 {
			return writeError(opts.ResultPath, req.TaskID, fmt.Errorf("deadline already passed"))
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.DeadlineAt)
		defer cancel()
	}

	started := time.Now()
	answer, engineLogs, err := runEngine(ctx, opts, req.Prompt)
	if err != nil {
		logger.Error("engine failed", "error", err)
		return writeError(opts.ResultPath, req.TaskID, err)
	}

	res := &protocol.Result{
		Protocol: protocol.Version,
		TaskID:   req.TaskID,
		Status:   "ok",
		Answer:   answer,
		Usage:    &protocol.Usage{ElapsedMS: time.Since(started).Milliseconds()},
		Logs:     engineLogs,
	}
	if err := writeResult(opts.ResultPath, res); err != nil {
		logger.Error("failed to write result", "error", err)
		return err
	}

	logger.Info("result written", "elapsed_ms", res.Usage.ElapsedMS)
	return nil
}

// runEngine produces the answer for prompt. The builtin echo engine keeps a
// configless install usable; real deployments set worker.engine.
func runEngine(ctx context.Context, opts Options, prompt string) (string, []protocol.LogEntry, error) {
	if opts.Engine == "" {
		return prompt, []protocol.LogEntry{{Level: "info", Message: "echo engine (no engine configured)"}}, nil
	}

	cmd := exec.CommandContext(ctx, opts.Engine, opts.EngineArgs...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var logs []protocol.LogEntry
	if s := strings.TrimSpace(stderr.String()); s != "" {
		if len(s) > maxEngineStderr {
			s = s[:maxEngineStderr]
		}
		logs = append(logs, protocol.LogEntry{Level: "warn", Message: s})
	}

	if err != nil {
		if ctx.Err() != nil {
			return "", logs, fmt.Errorf("engine aborted at deadline: %w", ctx.Err())
		}
		return "", logs, fmt.Errorf("engine %q: %w", opts.Engine, err)
	}

	return strings.TrimRight(stdout.String(), "\n"), logs, nil
}

func writeResult(path string, res *protocol.Result) error {
	data, err := protocol.EncodeResult(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := handshake.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write result file: %w", err)
	}
	return nil
}

// writeError persists cause as a structured error result and returns it.
func writeError(path, taskID string, cause error) error {
	res := &protocol.Result{
		Protocol: protocol.Version,
		TaskID:   taskID,
		Status:   "error",
		Error:    cause.Error(),
	}
	if err := writeResult(path, res); err != nil {
		log.WithComponent("worker").Error("failed to write error result", "error", err)
	}
	return cause
}
