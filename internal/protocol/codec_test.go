package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "valid request",
			req: &Request{
				Protocol:    1,
				TaskID:      "task-123",
				Prompt:      "hello",
				Params:      map[string]any{"temperature": 0.2},
				SubmittedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
				DeadlineAt:  time.Date(2026, 8, 1, 12, 0, 30, 0, time.UTC),
			},
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"protocol":1`) {
					t.Error("missing protocol field")
				}
				if !strings.Contains(output, `"task_id":"task-123"`) {
					t.Error("missing task_id field")
				}
				if !strings.Contains(output, `"prompt":"hello"`) {
					t.Error("missing prompt field")
				}
			},
		},
		{
			name: "unsupported protocol version",
			req: &Request{
				Protocol: 2,
				TaskID:   "task-123",
				Prompt:   "hello",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeRequest(&buf, tt.req)

			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid request",
			input:   `{"protocol":1,"task_id":"t1","prompt":"hi","submitted_at":"2026-08-01T12:00:00Z","deadline_at":"2026-08-01T12:00:30Z"}`,
			wantErr: false,
		},
		{
			name:    "unknown field rejected",
			input:   `{"protocol":1,"task_id":"t1","prompt":"hi","bogus":true}`,
			wantErr: true,
		},
		{
			name:    "missing task_id",
			input:   `{"protocol":1,"prompt":"hi"}`,
			wantErr: true,
		},
		{
			name:    "wrong protocol version",
			input:   `{"protocol":9,"task_id":"t1","prompt":"hi"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && req.TaskID == "" {
				t.Error("decoded request has empty task_id")
			}
		})
	}
}

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantErr        bool
		wantIncomplete bool
		checkFn        func(t *testing.T, res *Result)
	}{
		{
			name:  "valid ok result",
			input: `{"protocol":1,"task_id":"t1","status":"ok","answer":"world"}`,
			checkFn: func(t *testing.T, res *Result) {
				if res.Status != "ok" {
					t.Errorf("status = %q, want ok", res.Status)
				}
				if res.Answer != "world" {
					t.Errorf("answer = %q, want world", res.Answer)
				}
				if res.IsError() {
					t.Error("IsError() = true for ok result")
				}
			},
		},
		{
			name:  "valid error result",
			input: `{"protocol":1,"task_id":"t1","status":"error","error":"model load failed"}`,
			checkFn: func(t *testing.T, res *Result) {
				if !res.IsError() {
					t.Error("IsError() = false for error result")
				}
				if res.Error != "model load failed" {
					t.Errorf("error = %q", res.Error)
				}
			},
		},
		{
			name:           "empty file is incomplete",
			input:          "",
			wantErr:        true,
			wantIncomplete: true,
		},
		{
			name:           "truncated JSON is incomplete",
			input:          `{"protocol":1,"task_id":"t1","status":"o`,
			wantErr:        true,
			wantIncomplete: true,
		},
		{
			name:    "garbage is persistent",
			input:   `}{not json at all`,
			wantErr: true,
		},
		{
			name:    "invalid status value",
			input:   `{"protocol":1,"task_id":"t1","status":"done"}`,
			wantErr: true,
		},
		{
			name:    "missing status",
			input:   `{"protocol":1,"task_id":"t1"}`,
			wantErr: true,
		},
		{
			name:    "error status without message",
			input:   `{"protocol":1,"task_id":"t1","status":"error"}`,
			wantErr: true,
		},
		{
			name:    "wrong protocol version",
			input:   `{"protocol":3,"task_id":"t1","status":"ok"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DecodeResult([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeResult() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantIncomplete != errors.Is(err, ErrIncomplete) {
				t.Fatalf("errors.Is(err, ErrIncomplete) = %v, want %v (err = %v)",
					errors.Is(err, ErrIncomplete), tt.wantIncomplete, err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, res)
			}
		})
	}
}

func TestRoundTripResult(t *testing.T) {
	res := &Result{
		Protocol: 1,
		TaskID:   "t1",
		Status:   "ok",
		Answer:   "forty-two",
		Usage:    &Usage{CompletionTokens: 3, ElapsedMS: 1200},
		Logs:     []LogEntry{{Level: "info", Message: "loaded model"}},
	}

	data, err := EncodeResult(res)
	if err != nil {
		t.Fatalf("EncodeResult() error = %v", err)
	}
	got, err := DecodeResult(data)
	if err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if got.Answer != res.Answer || got.Usage.ElapsedMS != 1200 || len(got.Logs) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
