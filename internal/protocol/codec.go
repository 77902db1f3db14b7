package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrIncomplete marks a result file that exists but is not fully written
// yet: empty, or truncated mid-flush. Callers retry on the next poll tick
// instead of treating it as terminal.
var ErrIncomplete = errors.New("result file is incomplete")

// EncodeRequest serializes a Request to JSON and writes it to w.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeRequest reads and deserializes a Request from r. Strict: unknown
// fields are rejected so a worker fails fast on a version mismatch.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}

	if req.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("request missing required field: task_id")
	}

	return &req, nil
}

// EncodeResult serializes a Result to JSON.
func EncodeResult(res *Result) ([]byte, error) {
	if res.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", res.Protocol)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

// DecodeResult parses the raw bytes of a result file.
//
// A file observed mid-flush (empty, or JSON cut off at end of input) returns
// ErrIncomplete so the caller can retry on the next tick. Any other failure
// is persistent: syntactically broken JSON, a bad envelope, or a status the
// protocol does not define.
func DecodeResult(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrIncomplete
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		if isTruncated(err, data) {
			return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
		}
		return nil, fmt.Errorf("result is not valid JSON: %w", err)
	}

	if res.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", res.Protocol)
	}
	if res.Status == "" {
		return nil, fmt.Errorf("result missing required field: status")
	}
	if res.Status != "ok" && res.Status != "error" {
		return nil, fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", res.Status)
	}
	if res.Status == "error" && res.Error == "" {
		return nil, fmt.Errorf("result has status=error but no error message")
	}

	return &res, nil
}

// isTruncated reports whether a JSON unmarshal error indicates input that
// was cut off at the end, rather than input that is malformed in place.
func isTruncated(err error, data []byte) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return int(syntaxErr.Offset) >= len(data)
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
