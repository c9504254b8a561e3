// Package record defines the telemetry record, one line in the
// hash-chained JSONL spool, and the builder that composes it from a
// decoded hook event, a scope verdict, and capture-time metadata.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format for capture timestamps:
// UTC, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Details is the flattened, size-bounded action payload. All fields are
// fixed (no map[string]any) to guarantee deterministic json.Marshal
// field order for reproducible hashing.
type Details struct {
	FilePath  string `json:"file_path,omitempty"`
	Command   string `json:"command,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	URL       string `json:"url,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Record is one captured tool invocation. Immutable once appended to
// the spool; RecordID, Seq, and PrevHash are assigned by the buffer at
// append time.
type Record struct {
	RecordID      string  `json:"record_id"`
	Seq           uint64  `json:"seq"`
	Timestamp     string  `json:"ts"`
	SessionID     string  `json:"session_id"`
	ProjectPath   string  `json:"project_path"`
	ProjectName   string  `json:"project_name"`
	ToolName      string  `json:"tool_name"`
	EventType     string  `json:"event_type"`
	ActionDetails Details `json:"action_details"`
	ScopeFlag     bool    `json:"scope_flag"`
	RawPayload    string  `json:"raw_payload,omitempty"`
	PrevHash      string  `json:"prev_hash"`
}

// Encode marshals a record to its wire form (one JSONL line, no
// trailing newline).
func Encode(r *Record) ([]byte, error) {
	line, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record: marshal: %w", err)
	}
	return line, nil
}

// Decode parses one wire line back into a record.
func Decode(line []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, fmt.Errorf("record: unmarshal: %w", err)
	}
	return &r, nil
}

// Time parses the record's timestamp. Returns the zero time if the
// field is malformed.
func (r *Record) Time() time.Time {
	t, err := time.Parse(TimestampLayout, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
