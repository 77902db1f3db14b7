// Package handshake manages the per-task filesystem channel between the
// supervisor and a worker process: one directory per task holding a request
// file (written once by the supervisor) and a result file (written once by
// the worker). Result-file presence is the completion signal.
package handshake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// RequestFileName is the request payload file inside a task directory.
	RequestFileName = "request.json"
	// ResultFileName is the worker-written result file inside a task directory.
	ResultFileName = "result.json"
)

// Handshake identifies one task's directory and its two files.
type Handshake struct {
	TaskID      string
	Dir         string
	RequestPath string
	ResultPath  string
}

// ResultExists reports whether the worker has produced a result file.
// A rename-into-place write makes presence a reliable signal.
func (h Handshake) ResultExists() (bool, error) {
	info, err := os.Stat(h.ResultPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat result file: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("result path %q is a directory", h.ResultPath)
	}
	return true, nil
}

// ReadResult returns the raw result file contents.
func (h Handshake) ReadResult() ([]byte, error) {
	data, err := os.ReadFile(h.ResultPath)
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	return data, nil
}

// SweepReport summarizes a Sweep pass.
type SweepReport struct {
	DeletedDirs int
}

// Manager owns a base directory and creates one subdirectory per task.
type Manager struct {
	baseDir string
	now     func() time.Time
}

// NewManager creates a handshake manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("handshake base directory is empty")
	}

	return &Manager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
	}, nil
}

// BaseDir returns the directory the manager controls.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Create initializes the handshake directory for taskID and returns its
// file paths. The result file does not exist yet.
func (m *Manager) Create(ctx context.Context, taskID string) (Handshake, error) {
	if err := ctx.Err(); err != nil {
		return Handshake{}, err
	}

	dir, err := m.taskDir(taskID)
	if err != nil {
		return Handshake{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Handshake{}, fmt.Errorf("create handshake base directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Handshake{}, fmt.Errorf("create handshake directory for task %q: %w", taskID, err)
	}

	return Handshake{
		TaskID:      taskID,
		Dir:         dir,
		RequestPath: filepath.Join(dir, RequestFileName),
		ResultPath:  filepath.Join(dir, ResultFileName),
	}, nil
}

// WriteRequest writes the request payload atomically (temp name + rename) so
// the worker never observes a half-written request.
func (m *Manager) WriteRequest(h Handshake, data []byte) error {
	if err := WriteFileAtomic(h.RequestPath, data); err != nil {
		return fmt.Errorf("write request for task %q: %w", h.TaskID, err)
	}
	return nil
}

// Remove deletes the task's handshake directory. Idempotent: removing an
// already-removed directory is not an error.
func (m *Manager) Remove(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := m.taskDir(taskID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove handshake directory for task %q: %w", taskID, err)
	}
	return nil
}

// Sweep removes task directories older than olderThan, based on directory
// modification time. Used at startup to clear leftovers from crashed runs.
func (m *Manager) Sweep(ctx context.Context, olderThan time.Duration) (SweepReport, error) {
	if err := ctx.Err(); err != nil {
		return SweepReport{}, err
	}
	if olderThan <= 0 {
		return SweepReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return SweepReport{}, nil
	}
	if err != nil {
		return SweepReport{}, fmt.Errorf("read handshake base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := SweepReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read handshake entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("remove handshake directory %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

func (m *Manager) taskDir(taskID string) (string, error) {
	if err := validateTaskID(taskID); err != nil {
		return "", err
	}
	return filepath.Join(m.baseDir, taskID), nil
}

// WriteFileAtomic writes data to path via a temporary file in the same
// directory and a rename, so a concurrent reader sees either nothing or the
// complete file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

func validateTaskID(taskID string) error {
	trimmed := strings.TrimSpace(taskID)
	if trimmed == "" {
		return fmt.Errorf("taskID is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("taskID %q is invalid", taskID)
	}
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return fmt.Errorf("taskID %q must not contain path separators", taskID)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("taskID %q is invalid", taskID)
	}
	return nil
}
